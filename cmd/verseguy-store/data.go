package main

import (
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/asMODhias/VerseGuy-sub000/pkg/storage"
	"github.com/spf13/cobra"
)

func newPutCmd(opts *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "put KEY [VALUE]",
		Short: "Write a raw value",
		Long: `Write VALUE under KEY. With --file the value is read from a file,
or from stdin when the file is "-".`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := putValue(cmd, args, file)
			if err != nil {
				return err
			}

			return opts.withEngine(func(e *storage.Engine) error {
				if err := e.Put(args[0], value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d bytes)\n", okFmt("✓"), keyFmt(args[0]), len(value))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the value from a file (- for stdin)")
	return cmd
}

func putValue(cmd *cobra.Command, args []string, file string) ([]byte, error) {
	switch {
	case file == "-":
		return io.ReadAll(cmd.InOrStdin())
	case file != "":
		return os.ReadFile(file)
	case len(args) == 2:
		return []byte(args[1]), nil
	default:
		return nil, fmt.Errorf("a VALUE argument or --file is required")
	}
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print a raw value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(func(e *storage.Engine) error {
				value, found, err := e.Get(args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%w: %s", storage.ErrNotFound, args[0])
				}
				_, err = cmd.OutOrStdout().Write(value)
				return err
			})
		},
	}
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete KEY...",
		Aliases: []string{"rm"},
		Short:   "Delete keys",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(func(e *storage.Engine) error {
				tx := e.Begin()
				defer tx.Rollback()
				for _, k := range args {
					if err := tx.Delete(k); err != nil {
						return err
					}
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %d key(s)\n", okFmt("✓"), len(args))
				return nil
			})
		},
	}
}

func newScanCmd(opts *globalOptions) *cobra.Command {
	var (
		keysOnly bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "scan [PREFIX]",
		Short: "List keys sharing a prefix, in key order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

			return opts.withEngine(func(e *storage.Engine) error {
				kvs, err := e.ScanPrefix(prefix)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for i, kv := range kvs {
					if limit > 0 && i >= limit {
						fmt.Fprintln(out, dimFmt(fmt.Sprintf("... %d more", len(kvs)-limit)))
						break
					}
					if keysOnly {
						fmt.Fprintln(out, kv.Key)
						continue
					}
					fmt.Fprintf(out, "%s\t%s\n", keyFmt(kv.Key), preview(kv.Value))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&keysOnly, "keys-only", "k", false, "Print keys only")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of entries to print (0 = all)")
	return cmd
}

const previewLen = 80

// preview renders a value on one line, falling back to a size for binary data
func preview(v []byte) string {
	if !utf8.Valid(v) {
		return dimFmt(fmt.Sprintf("<%d bytes binary>", len(v)))
	}
	s := fmt.Sprintf("%q", v)
	if len(s) > previewLen {
		s = s[:previewLen] + "..."
	}
	return s
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show engine statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(func(e *storage.Engine) error {
				fmt.Fprintln(cmd.OutOrStdout(), e.Stats())
				return nil
			})
		},
	}
}
