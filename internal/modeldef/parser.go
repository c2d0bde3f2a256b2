// Package modeldef reads document model declarations from Go source.
//
// A model is any struct with an ID field. Exported fields become keys,
// named by `doc` tags or by their snake_case field name, and fields with
// a `rel` tag become associations:
//
//	type Account struct {
//	    ID          string
//	    Name        string              `doc:"name"`
//	    Memberships []AccountMembership `rel:"has_many,name:account_memberships"`
//	    Users       []AccountUser       `rel:"has_many_through,through:account_memberships"`
//	}
//
// A CollectionName method returning a string literal overrides the
// collection name.
package modeldef

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"strconv"
	"strings"

	"github.com/mickamy/docmap/internal/naming"
	"github.com/mickamy/docmap/odm"
)

// KeyInfo holds parsed metadata for one key field.
type KeyInfo struct {
	Field      string      // Go field name, e.g. "AccountID"
	Name       string      // document key, e.g. "account_id"
	GoType     string      // e.g. "string", "time.Time"
	Type       odm.KeyType // derived from GoType and Name
	Default    any
	HasDefault bool
}

// AssocInfo holds parsed metadata for one `rel` field.
type AssocInfo struct {
	Field      string
	Name       string
	Kind       odm.Kind
	Target     string
	ForeignKey string
	Through    string
	Source     string
}

// ModelInfo holds parsed metadata for one model struct.
type ModelInfo struct {
	Name       string
	Package    string
	Collection string // empty unless CollectionName is declared
	Keys       []KeyInfo
	Assocs     []AssocInfo
}

// Parse reads the Go file at filePath and returns a ModelInfo for every
// struct with an ID field, in declaration order.
func Parse(filePath string) ([]*ModelInfo, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}

	pkg := file.Name.Name
	var (
		infos   []*ModelInfo
		parseErr error
	)

	ast.Inspect(file, func(n ast.Node) bool {
		if parseErr != nil {
			return false
		}
		ts, ok := n.(*ast.TypeSpec)
		if !ok {
			return true
		}
		st, ok := ts.Type.(*ast.StructType)
		if !ok || !hasID(st) {
			return true
		}

		info := &ModelInfo{Name: ts.Name.Name, Package: pkg}
		if err := parseStructFields(info, st); err != nil {
			parseErr = fmt.Errorf("%s: %w", info.Name, err)
			return false
		}
		infos = append(infos, info)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	collections := collectionNames(file)
	for _, info := range infos {
		info.Collection = collections[info.Name]
	}
	return infos, nil
}

func hasID(st *ast.StructType) bool {
	for _, field := range st.Fields.List {
		for _, name := range field.Names {
			if name.Name == "ID" {
				return true
			}
		}
	}
	return false
}

func parseStructFields(info *ModelInfo, st *ast.StructType) error {
	for _, field := range st.Fields.List {
		if len(field.Names) == 0 {
			continue // embedded field
		}
		name := field.Names[0]
		if !name.IsExported() || name.Name == "ID" {
			continue
		}

		tag := reflect.StructTag("")
		if field.Tag != nil {
			tag = reflect.StructTag(strings.Trim(field.Tag.Value, "`"))
		}

		if relTag, ok := tag.Lookup("rel"); ok {
			a, err := parseRel(name.Name, field.Type, relTag)
			if err != nil {
				return err
			}
			info.Assocs = append(info.Assocs, a)
			continue
		}

		k, skip, err := parseKey(name.Name, field.Type, tag)
		if err != nil {
			return err
		}
		if !skip {
			info.Keys = append(info.Keys, k)
		}
	}
	return nil
}

func parseKey(field string, expr ast.Expr, tag reflect.StructTag) (KeyInfo, bool, error) {
	k := KeyInfo{
		Field:  field,
		Name:   naming.CamelToSnake(field),
		GoType: typeToString(expr),
	}

	var defaultValue *string
	if docTag, ok := tag.Lookup("doc"); ok {
		if docTag == "-" {
			return KeyInfo{}, true, nil
		}
		parts := strings.Split(docTag, ",")
		if parts[0] != "" {
			k.Name = parts[0]
		}
		for _, opt := range parts[1:] {
			if v, found := strings.CutPrefix(opt, "default:"); found {
				defaultValue = &v
			}
		}
	}

	k.Type = keyType(k.GoType, k.Name)
	if defaultValue != nil {
		v, err := parseDefault(k.Type, *defaultValue)
		if err != nil {
			return KeyInfo{}, false, fmt.Errorf("field %s: %w", field, err)
		}
		k.Default, k.HasDefault = v, true
	}
	return k, false, nil
}

func keyType(goType, name string) odm.KeyType {
	switch strings.TrimPrefix(goType, "*") {
	case "string":
		if strings.HasSuffix(name, "_id") {
			return odm.ID
		}
		return odm.String
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
		return odm.Int
	case "float32", "float64":
		return odm.Float
	case "bool":
		return odm.Bool
	case "time.Time":
		return odm.Time
	default:
		return odm.Any
	}
}

func parseDefault(t odm.KeyType, s string) (any, error) {
	switch t {
	case odm.String, odm.ID, odm.Any:
		return s, nil
	case odm.Int:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("default %q: %w", s, err)
		}
		return v, nil
	case odm.Float:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("default %q: %w", s, err)
		}
		return v, nil
	case odm.Bool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("default %q: %w", s, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("default not supported for %s keys", t)
	}
}

var relKinds = map[string]odm.Kind{
	"belongs_to":       odm.BelongsTo,
	"has_one":          odm.HasOne,
	"has_many":         odm.HasMany,
	"has_many_through": odm.HasManyThrough,
}

// parseRel parses `rel:"kind[,name:x][,target:Y][,foreign_key:z][,through:t][,source:s]"`.
// The target defaults to the field's element type.
func parseRel(field string, expr ast.Expr, relTag string) (AssocInfo, error) {
	parts := strings.Split(relTag, ",")
	kind, ok := relKinds[parts[0]]
	if !ok {
		return AssocInfo{}, fmt.Errorf("field %s: unknown relation %q", field, parts[0])
	}

	a := AssocInfo{
		Field:  field,
		Name:   naming.CamelToSnake(field),
		Kind:   kind,
		Target: elemType(expr),
	}
	for _, opt := range parts[1:] {
		key, value, found := strings.Cut(opt, ":")
		if !found {
			return AssocInfo{}, fmt.Errorf("field %s: malformed option %q", field, opt)
		}
		switch key {
		case "name":
			a.Name = value
		case "target":
			a.Target = value
		case "foreign_key":
			a.ForeignKey = value
		case "through":
			a.Through = value
		case "source":
			a.Source = value
		default:
			return AssocInfo{}, fmt.Errorf("field %s: unknown option %q", field, key)
		}
	}
	if kind == odm.HasManyThrough && a.Through == "" {
		return AssocInfo{}, fmt.Errorf("field %s: has_many_through needs through", field)
	}
	return a, nil
}

// elemType strips slices, arrays and pointers and drops any package
// qualifier: []*model.User -> "User".
func elemType(expr ast.Expr) string {
	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.ArrayType:
			expr = t.Elt
		case *ast.SelectorExpr:
			return t.Sel.Name
		case *ast.Ident:
			return t.Name
		default:
			return ""
		}
	}
}

// collectionNames finds `func (T) CollectionName() string { return "x" }`
// methods.
func collectionNames(file *ast.File) map[string]string {
	names := make(map[string]string)
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || fn.Name.Name != "CollectionName" || fn.Body == nil {
			continue
		}
		if len(fn.Recv.List) != 1 || len(fn.Body.List) != 1 {
			continue
		}
		ret, ok := fn.Body.List[0].(*ast.ReturnStmt)
		if !ok || len(ret.Results) != 1 {
			continue
		}
		lit, ok := ret.Results[0].(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING {
			continue
		}
		v, err := strconv.Unquote(lit.Value)
		if err != nil {
			continue
		}
		names[elemType(fn.Recv.List[0].Type)] = v
	}
	return names
}

func typeToString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.SelectorExpr:
		return typeToString(t.X) + "." + t.Sel.Name
	case *ast.StarExpr:
		return "*" + typeToString(t.X)
	case *ast.ArrayType:
		if t.Len == nil {
			return "[]" + typeToString(t.Elt)
		}
		return fmt.Sprintf("[%s]%s", typeToString(t.Len), typeToString(t.Elt))
	case *ast.MapType:
		return "map[" + typeToString(t.Key) + "]" + typeToString(t.Value)
	default:
		return fmt.Sprintf("%T", expr)
	}
}
