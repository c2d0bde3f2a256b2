package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mickamy/docmap/scope"
)

var errInvalidWhere = errors.New("--where wants field=value")

type countOptions struct {
	model string
	id    string
	assoc string
	where []string
}

func newCountCmd(a *app) *cobra.Command {
	var opts countOptions

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count the documents of one association of a document",
		Example: `  docmap count --schema models.go --driver sqlite --dsn file:app.db \
    --model Account --id 0190... --assoc users --where login=foo`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopes, err := parseWhere(opts.where)
			if err != nil {
				return err
			}

			db, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB(db, cmd.ErrOrStderr())

			coll, err := db.Collection(opts.model)
			if err != nil {
				return err //nolint:wrapcheck // already prefixed
			}
			owner, err := coll.FindByID(cmd.Context(), opts.id)
			if err != nil {
				return err //nolint:wrapcheck // already prefixed
			}
			proxy, err := owner.Many(opts.assoc)
			if err != nil {
				return err //nolint:wrapcheck // already prefixed
			}
			n, err := proxy.Count(cmd.Context(), scopes...)
			if err != nil {
				return err //nolint:wrapcheck // already prefixed
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.model, "model", "", "owner model name")
	cmd.Flags().StringVar(&opts.id, "id", "", "owner document id")
	cmd.Flags().StringVar(&opts.assoc, "assoc", "", "association name")
	cmd.Flags().StringArrayVar(&opts.where, "where", nil, "string equality condition field=value (repeatable)")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("assoc")

	return cmd
}

func parseWhere(exprs []string) ([]scope.Scope, error) {
	scopes := make([]scope.Scope, 0, len(exprs))
	for _, expr := range exprs {
		field, value, ok := strings.Cut(expr, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("%w: %q", errInvalidWhere, expr)
		}
		scopes = append(scopes, scope.Where(field, value))
	}
	return scopes, nil
}
