package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"lostfound/internal/audit"
	"lostfound/internal/bootstrap"
	"lostfound/internal/config"
	"lostfound/internal/logging"
	"lostfound/internal/shared"
	"lostfound/internal/storage"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// EnvConfigPath overrides the config file location when --config_path is not given.
const EnvConfigPath = "LOSTFOUND_CONFIG_PATH"

type GlobalOptions struct {
	Root        string
	CfgFilePath string
	LogLevel    string

	Conf *config.Config

	// resolved storage root, set before any command runs
	root string
	// set once flags and args were accepted, so later errors are runtime errors
	started bool
}

func NewRootCMD() *cobra.Command {
	rootCMD, _ := newRootWithOptions()
	return rootCMD
}

func newRootWithOptions() (*cobra.Command, *GlobalOptions) {
	globalOptions := &GlobalOptions{}

	rootCMD := &cobra.Command{
		Use:           "lostfound",
		Short:         "Lost & found store administration",
		Long:          "Sets up and maintains the lost & found database: schema upgrades, users and settings.",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return globalOptions.initialize(cmd)
		},
	}

	// register global flags
	globalOptions.registerFlags(rootCMD)

	// add subcommands
	rootCMD.AddCommand(NewSetupCommand(globalOptions))
	rootCMD.AddCommand(NewMigrateCommand(globalOptions))
	rootCMD.AddCommand(NewLoginCommand(globalOptions))
	rootCMD.AddCommand(NewWhoamiCommand(globalOptions))
	rootCMD.AddCommand(NewUserCommand(globalOptions))
	rootCMD.AddCommand(NewSettingsCommand(globalOptions))

	return rootCMD, globalOptions
}

func (options *GlobalOptions) registerFlags(cmd *cobra.Command) {
	// flags that can be used for each command
	cmd.PersistentFlags().StringVar(&options.Root, "root", "", "Storage root directory. (Env: "+storage.EnvRoot+")")
	cmd.PersistentFlags().StringVar(&options.CfgFilePath, "config_path", "", "Path to the configuration file, default <root>/config/config.toml. (Env: "+EnvConfigPath+")")
	cmd.PersistentFlags().StringVar(&options.LogLevel, "log-level", "", "Logging level (trace, debug, info, warn, error). (Env: LOSTFOUND_LOGGING_LEVEL)")
	cmd.PersistentFlags().String("lock-timeout", "", "How long to wait for a locked database, e.g. '10s'. (Env: LOSTFOUND_DATABASE_LOCK_TIMEOUT)")
	cmd.PersistentFlags().Bool("audit-enabled", false, "Enable audit logging. (Env: LOSTFOUND_LOGGING_AUDIT_ENABLED=true)")
	cmd.PersistentFlags().String("admin-password", "", "Password for the first 'admin' user. (Env: LOSTFOUND_SECURITY_ADMIN_PASSWORD)")
}

// initialize resolves the storage root, loads the configuration and sets up logging.
func (options *GlobalOptions) initialize(cmd *cobra.Command) error {
	options.started = true

	root, err := storage.ResolveRoot(options.Root)
	if err != nil {
		return fmt.Errorf("%w: resolve storage root: %v", shared.ErrStorageUnavailable, err)
	}
	options.root = root

	if options.CfgFilePath == "" {
		options.CfgFilePath = os.Getenv(EnvConfigPath)
	}
	if options.CfgFilePath == "" {
		options.CfgFilePath = storage.Layout(root).ConfigFile
	}

	cfg, err := config.Load(options.CfgFilePath, cmd.Flags())
	if err != nil {
		return plainError{err}
	}
	options.Conf = cfg

	logging.Init(cfg.Logging.Level)
	logging.Log.Debugf("Using storage root %s and config %s", root, options.CfgFilePath)
	return nil
}

// open runs the startup chain every command shares.
func (options *GlobalOptions) open(ctx context.Context) (*bootstrap.Runtime, error) {
	return options.openWith(ctx, false)
}

// openWith is open with an optional skip of the admin bootstrap. Commands
// that repair accounts use it, so a store whose only admin lost its role
// can still be fixed.
func (options *GlobalOptions) openWith(ctx context.Context, skipAdmin bool) (*bootstrap.Runtime, error) {
	return bootstrap.Open(ctx, bootstrap.Options{
		Root:      options.root,
		Config:    options.Conf,
		SkipAdmin: skipAdmin,
		Auditor:   audit.NewLoggerAuditor(options.Conf.Logging.AuditEnabled),
	})
}

// plainError marks an error whose text is safe to show as is.
type plainError struct{ err error }

func (e plainError) Error() string { return e.err.Error() }
func (e plainError) Unwrap() error { return e.err }

// errorMessage picks what the user sees for err. Flag and argument errors
// and plainErrors are shown as they are; everything else goes through
// shared.UserMessage so driver text never reaches the terminal.
func errorMessage(err error, started bool) string {
	var plain plainError
	if !started || errors.As(err, &plain) {
		return err.Error()
	}
	return shared.UserMessage(err)
}

// run executes the command tree with args and returns the exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	rootCmd, options := newRootWithOptions()
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		logging.Log.Debugf("Command failed: %v", err)
		fmt.Fprintln(stderr, "Error:", errorMessage(err, options.started))
		return 1
	}
	return 0
}

func Execute() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
