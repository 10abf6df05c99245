package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-import/internal/cli"
	"github.com/insightdelivered/statement-import/internal/store"
)

func newImportsCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "imports",
		Short: "List recent import attempts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.NewSQLiteStore(cmd.Context(), a.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			attempts, err := st.Attempts(cmd.Context(), limit)
			if err != nil {
				return err
			}

			version, err := st.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("%s (schema v%d)", a.cfg.Database.Path, version)))
			if len(attempts) == 0 {
				fmt.Fprintln(out, cli.SubtleStyle.Render("no imports yet"))
				return nil
			}
			for _, at := range attempts {
				when := at.CreatedAt.Local().Format("2006-01-02 15:04")
				if at.Succeeded() {
					fmt.Fprintln(out, cli.Success(fmt.Sprintf("%s  %-28s %-5s %-20s %d txns", when, at.Filename, at.Source, at.BankName, at.TransactionCount)))
				} else {
					fmt.Fprintln(out, cli.Error(fmt.Sprintf("%s  %-28s %-5s %s", when, at.Filename, at.Source, at.Failure)))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of attempts to show")
	return cmd
}
