package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/asMODhias/VerseGuy-sub000/pkg/storage"
	"github.com/spf13/cobra"
)

func newBackupCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list, prune and restore backups",
	}

	cmd.AddCommand(
		newBackupCreateCmd(opts),
		newBackupListCmd(opts),
		newBackupPruneCmd(opts),
		newBackupRestoreCmd(opts),
	)
	return cmd
}

func newBackupCreateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Write a consistent copy of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(func(e *storage.Engine) error {
				path, err := e.Backup()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okFmt("✓"), path)
				return nil
			})
		},
	}
}

func newBackupListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List backups, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			backups, err := storage.ListBackups(cfg)
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dimFmt("no backups in "+cfg.BackupDirectory()))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tSIZE\tPATH")
			for _, b := range backups {
				fmt.Fprintf(w, "%s\t%d\t%s\n", b.CreatedAt.Local().Format(time.DateTime), b.Size, b.Path)
			}
			return w.Flush()
		},
	}
}

func newBackupPruneCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete backups beyond backup_retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(func(e *storage.Engine) error {
				removed, err := e.PruneBackups()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s removed %d backup(s)\n", okFmt("✓"), removed)
				return nil
			})
		},
	}
}

func newBackupRestoreCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore FILE",
		Short: "Replace the database with a backup",
		Long: `Replace the database with FILE. The store must not be open in any
other process. The backup is only readable with the key it was written
with, which is resolved the same way as for the live database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := storage.RestoreBackup(cfg, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s restored %s into %s\n", okFmt("✓"), args[0], cfg.DatabaseFile())
			return nil
		},
	}
}
