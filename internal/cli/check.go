package cli

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mickamy/docmap/odm"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the schema and list every association",
		Long: `Parse the model structs in the schema file, resolve every association
and print them. Exits non-zero when the schema does not resolve.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := a.schema()
			if err != nil {
				return err
			}
			renderSchema(cmd, schema)
			return nil
		},
	}
}

func renderSchema(cmd *cobra.Command, schema *odm.Schema) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Model", "Collection", "Association", "Kind", "Target", "Foreign key", "Through"})

	for _, m := range schema.Models() {
		if len(m.Associations()) == 0 {
			t.AppendRow(table.Row{m.Name(), m.Collection(), "", "", "", "", ""})
			continue
		}
		for _, assoc := range m.Associations() {
			fk, through := assoc.ForeignKey(), ""
			if assoc.Kind() == odm.HasManyThrough {
				fk = assoc.Source().ForeignKey()
				through = assoc.Mediator().Name() + "." + assoc.Source().Name()
			}
			t.AppendRow(table.Row{
				m.Name(), m.Collection(), assoc.Name(), assoc.Kind().String(), assoc.Target().Name(), fk, through,
			})
		}
	}
	t.Render()
}
