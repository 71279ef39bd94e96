package main

import (
	"fmt"
	"os"

	"github.com/asMODhias/VerseGuy-sub000/pkg/log"
	"github.com/asMODhias/VerseGuy-sub000/pkg/storage"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	okFmt   = color.New(color.FgGreen).SprintFunc()
	warnFmt = color.New(color.FgYellow).SprintFunc()
	keyFmt  = color.New(color.FgCyan).SprintFunc()
	dimFmt  = color.New(color.Faint).SprintFunc()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand
type globalOptions struct {
	configFile string
	path       string
	logLevel   string
	jsonLogs   bool

	// credentials overrides the OS keyring; nil in production
	credentials storage.CredentialStore
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "verseguy-store",
		Short: "VerseGuy encrypted local storage",
		Long: `verseguy-store inspects and maintains the encrypted key/value store
that backs VerseGuy: raw key access, schema migrations, backups and a
metrics/health endpoint.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Init(log.Config{
				Level:      log.Level(opts.logLevel),
				JSONOutput: opts.jsonLogs,
				Output:     cmd.ErrOrStderr(),
			})
		},
	}

	cmd.SetVersionTemplate(fmt.Sprintf(
		"verseguy-store version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Storage config file (YAML)")
	flags.StringVar(&opts.path, "path", "", "Database directory (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.BoolVar(&opts.jsonLogs, "json-logs", false, "Emit logs as JSON")

	cmd.AddCommand(
		newPutCmd(opts),
		newGetCmd(opts),
		newDeleteCmd(opts),
		newScanCmd(opts),
		newStatsCmd(opts),
		newMigrateCmd(opts),
		newBackupCmd(opts),
		newKeyCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

// loadConfig reads --config (or the defaults) and applies flag overrides
func (o *globalOptions) loadConfig() (storage.Config, error) {
	cfg := storage.DefaultConfig()
	if o.configFile != "" {
		var err error
		if cfg, err = storage.LoadConfig(o.configFile); err != nil {
			return storage.Config{}, err
		}
	}
	if o.path != "" {
		cfg.Path = o.path
	}
	return cfg, cfg.Validate()
}

func (o *globalOptions) openEngine(extra ...storage.Option) (*storage.Engine, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg, append([]storage.Option{storage.WithCredentialStore(o.credentials)}, extra...)...)
}

// withEngine opens the store, runs fn and always closes it
func (o *globalOptions) withEngine(fn func(*storage.Engine) error) error {
	e, err := o.openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e)
}
