package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewSettingsCommand(globalOptions *GlobalOptions) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and edit application settings",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := globalOptions.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			settings, err := rt.Settings.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE")
			for _, s := range settings {
				fmt.Fprintf(w, "%s\t%s\n", s.Key, s.Value)
			}
			return w.Flush()
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := globalOptions.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := rt.Settings.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Value)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := globalOptions.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Settings.Set(cmd.Context(), cliActor, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s.\n", args[0])
			return nil
		},
	}

	settingsCmd.AddCommand(listCmd, getCmd, setCmd)
	return settingsCmd
}
