package main

import (
	"fmt"

	"github.com/asMODhias/VerseGuy-sub000/pkg/storage"
	"github.com/spf13/cobra"
)

func newKeyCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Inspect encryption key material",
	}
	cmd.AddCommand(newKeyInfoCmd(opts))
	return cmd
}

func newKeyInfoCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show where the store's key is looked up and which one would be used",
		Long: `Show the credential store entry and fallback file consulted for this
store's key, and which of them currently holds a valid key. Never prints
key material and never generates a key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			path := cfg.ExpandedPath()
			fmt.Fprintf(out, "database:          %s\n", cfg.DatabaseFile())
			fmt.Fprintf(out, "encryption:        %t\n", cfg.EncryptionEnabled)
			fmt.Fprintf(out, "credential entry:  %s / %s\n", storage.KeyringService, storage.KeyName(path))
			fmt.Fprintf(out, "key file:          %s\n", storage.KeyFilePath(path))

			source := storage.KeySourceConfig
			if cfg.EncryptionKey == "" {
				_, source, err = storage.NewKeyStore(opts.credentials).GetKey(&cfg)
				if err != nil {
					return err
				}
			}

			if source == storage.KeySourceNone {
				fmt.Fprintf(out, "active source:     %s\n", warnFmt("none (a key is generated on first open)"))
				return nil
			}
			fmt.Fprintf(out, "active source:     %s\n", okFmt(string(source)))
			return nil
		},
	}
}
