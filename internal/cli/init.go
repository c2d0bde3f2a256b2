package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create collections and foreign-key indexes in the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB(db, cmd.ErrOrStderr())

			if err := db.EnsureCollections(cmd.Context()); err != nil {
				return err //nolint:wrapcheck // already prefixed
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d collections ready (%s)\n", len(db.Schema().Models()), a.cfg.Store.Driver)
			return nil
		},
	}
}
