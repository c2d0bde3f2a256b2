package modeldef

import (
	"github.com/mickamy/docmap/odm"
)

// Register defines every model in infos on reg.
func Register(reg *odm.Registry, infos []*ModelInfo) *odm.Registry {
	for _, info := range infos {
		reg.Define(info.Name, func(m *odm.ModelDef) {
			if info.Collection != "" {
				m.Collection(info.Collection)
			}
			for _, k := range info.Keys {
				var opts []odm.KeyOption
				if k.HasDefault {
					opts = append(opts, odm.Default(k.Default))
				}
				m.Key(k.Name, k.Type, opts...)
			}
			for _, a := range info.Assocs {
				define(m, a)
			}
		})
	}
	return reg
}

// Load parses filePath and builds a Schema from it.
func Load(filePath string) (*odm.Schema, []*ModelInfo, error) {
	infos, err := Parse(filePath)
	if err != nil {
		return nil, nil, err
	}
	schema, err := Register(odm.NewRegistry(), infos).Build()
	if err != nil {
		return nil, infos, err //nolint:wrapcheck // schema errors are self-describing
	}
	return schema, infos, nil
}

func define(m *odm.ModelDef, a AssocInfo) {
	var opts []odm.AssocOption
	if a.Target != "" {
		opts = append(opts, odm.Target(a.Target))
	}
	if a.ForeignKey != "" {
		opts = append(opts, odm.ForeignKey(a.ForeignKey))
	}
	if a.Source != "" {
		opts = append(opts, odm.Source(a.Source))
	}

	switch a.Kind {
	case odm.BelongsTo:
		m.BelongsTo(a.Name, opts...)
	case odm.HasOne:
		m.HasOne(a.Name, opts...)
	case odm.HasMany:
		m.HasMany(a.Name, opts...)
	case odm.HasManyThrough:
		m.HasManyThrough(a.Name, a.Through, opts...)
	}
}
