package cli

import (
	"fmt"
	"os"

	"lostfound/internal/bootstrap"
	"lostfound/internal/initconfig"
	"lostfound/internal/services"

	"github.com/spf13/cobra"
)

type SetupOptions struct {
	InitConfig string
}

func NewSetupCommand(globalOptions *GlobalOptions) *cobra.Command {
	setupOptions := &SetupOptions{}

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Prepare the store for first use",
		Long: `Creates the storage layout, upgrades the database, makes sure an admin
exists and seeds the default settings from the [setup] config section.
Running it again only fills in what is missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd, globalOptions, setupOptions)
		},
	}

	setupOptions.registerFlags(setupCmd)
	return setupCmd
}

func (options *SetupOptions) registerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&options.InitConfig, "init_config", "", "Path to a TOML file with users and settings to create once. (Env: LOSTFOUND_INIT_CONFIG)")
}

func setup(cmd *cobra.Command, globalOptions *GlobalOptions, setupOptions *SetupOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if setupOptions.InitConfig == "" {
		setupOptions.InitConfig = os.Getenv("LOSTFOUND_INIT_CONFIG")
	}

	rt, err := globalOptions.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	seed, err := bootstrap.SetupDefaults(globalOptions.Conf)
	if err != nil {
		return err
	}
	report, err := bootstrap.Setup(ctx, rt, seed)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Storage root: %s\n", rt.Location.Root)
	fmt.Fprintf(out, "Database:     %s (%s)\n", rt.Location.DatabasePath, rt.Legacy)
	for _, r := range rt.Evolution {
		fmt.Fprintf(out, "Table %-10s %s\n", r.Table, describeEvolution(r))
	}
	switch {
	case rt.Admin == services.Created && globalOptions.Conf.Security.AdminPassword == "":
		fmt.Fprintf(out, "Admin user 'admin' created with password '%s'. Change it at first login.\n", services.DefaultAdminPassword)
	case rt.Admin == services.Created:
		fmt.Fprintln(out, "Admin user 'admin' created with the configured password.")
	default:
		fmt.Fprintln(out, "Admin user already present.")
	}
	fmt.Fprintf(out, "Settings: %d seeded, %d kept\n", len(report.Inserted), len(report.Skipped))

	if setupOptions.InitConfig != "" {
		initReport, err := initconfig.Run(ctx, rt.Users, rt.Settings, setupOptions.InitConfig)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Init file: %d user(s) created, %d skipped, %d failed\n",
			len(initReport.UsersCreated), len(initReport.UsersSkipped), len(initReport.UsersFailed))
		if !initReport.PasswordsCleared {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: passwords could not be removed from %s; remove them by hand.\n", setupOptions.InitConfig)
		}
	}
	return nil
}
