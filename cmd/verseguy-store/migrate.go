package main

import (
	"fmt"

	"github.com/asMODhias/VerseGuy-sub000/pkg/storage"
	"github.com/asMODhias/VerseGuy-sub000/pkg/types"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	var (
		dryRun bool
		backup bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply every registered migration that has not run against this store,
in version order. Applied migrations are recorded in the store and are
never run twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mm, err := types.Migrations()
			if err != nil {
				return err
			}

			return opts.withEngine(func(e *storage.Engine) error {
				out := cmd.OutOrStdout()

				pending, err := mm.Pending(e)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintf(out, "%s store is up to date\n", okFmt("✓"))
					return nil
				}

				if dryRun {
					fmt.Fprintln(out, "[DRY RUN] Would apply:")
					for _, m := range pending {
						fmt.Fprintf(out, "  %d  %s\n", m.Version, m.Description)
					}
					fmt.Fprintln(out, dimFmt("Run without --dry-run to apply."))
					return nil
				}

				if backup {
					path, err := e.Backup()
					if err != nil {
						return fmt.Errorf("backup before migration: %w", err)
					}
					fmt.Fprintf(out, "%s backup created: %s\n", okFmt("✓"), path)
				}

				applied, err := mm.Run(e)
				if err != nil {
					fmt.Fprintf(out, "%s applied %d of %d migration(s) before failing\n", warnFmt("!"), applied, len(pending))
					return err
				}
				fmt.Fprintf(out, "%s applied %d migration(s)\n", okFmt("✓"), applied)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show pending migrations without applying them")
	cmd.Flags().BoolVar(&backup, "backup", true, "Create a backup before applying migrations")
	return cmd
}
