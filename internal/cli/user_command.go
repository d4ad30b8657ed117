package cli

import (
	"fmt"
	"text/tabwriter"

	"lostfound/internal/models"
	"lostfound/internal/services"

	"github.com/spf13/cobra"
)

// cliActor is the audit actor for changes made from the command line.
const cliActor = "cli"

type UserAddOptions struct {
	Role        string
	DisplayName string
	StoreName   string
}

func NewUserCommand(globalOptions *GlobalOptions) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	addOptions := &UserAddOptions{}
	addCmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user (the password is prompted for)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return userAdd(cmd, globalOptions, addOptions, args[0])
		},
	}
	addCmd.Flags().StringVar(&addOptions.Role, "role", models.RoleUser, "Role of the new user (admin or user).")
	addCmd.Flags().StringVar(&addOptions.DisplayName, "display-name", "", "Name shown in the application.")
	addCmd.Flags().StringVar(&addOptions.StoreName, "store", "", "Store or desk the user works at.")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return userList(cmd, globalOptions)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUsers(cmd, globalOptions, func(users services.UserService) error {
				if err := users.DeleteUser(cmd.Context(), cliActor, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted user '%s'.\n", args[0])
				return nil
			})
		},
	}

	roleCmd := &cobra.Command{
		Use:   "role <username> <admin|user>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUsersNoBootstrap(cmd, globalOptions, func(users services.UserService) error {
				if err := users.SetRole(cmd.Context(), cliActor, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User '%s' is now %s.\n", args[0], args[1])
				return nil
			})
		},
	}

	passwdCmd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Set a new password for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := newPrompter(cmd).NewPassword("New password: ")
			if err != nil {
				return err
			}
			return withUsersNoBootstrap(cmd, globalOptions, func(users services.UserService) error {
				if err := users.ResetPassword(cmd.Context(), cliActor, args[0], password); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Password of '%s' changed.\n", args[0])
				return nil
			})
		},
	}

	userCmd.AddCommand(addCmd, listCmd, deleteCmd, roleCmd, passwdCmd)
	return userCmd
}

func withUsers(cmd *cobra.Command, globalOptions *GlobalOptions, fn func(services.UserService) error) error {
	rt, err := globalOptions.open(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt.Users)
}

// withUsersNoBootstrap skips the admin bootstrap. role and passwd use it to
// repair a store where the "admin" name belongs to a non-admin account.
func withUsersNoBootstrap(cmd *cobra.Command, globalOptions *GlobalOptions, fn func(services.UserService) error) error {
	rt, err := globalOptions.openWith(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt.Users)
}

func userAdd(cmd *cobra.Command, globalOptions *GlobalOptions, options *UserAddOptions, username string) error {
	password, err := newPrompter(cmd).NewPassword("Password: ")
	if err != nil {
		return err
	}
	return withUsers(cmd, globalOptions, func(users services.UserService) error {
		user, err := users.Register(cmd.Context(), services.RegisterRequest{
			Actor:       cliActor,
			Username:    username,
			Password:    password,
			DisplayName: options.DisplayName,
			Role:        options.Role,
			StoreName:   options.StoreName,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created user '%s' (%s).\n", user.Username, user.Role)
		return nil
	})
}

func userList(cmd *cobra.Command, globalOptions *GlobalOptions) error {
	return withUsers(cmd, globalOptions, func(users services.UserService) error {
		list, err := users.ListUsers(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tROLE\tDISPLAY NAME\tSTORE\tLAST LOGIN")
		for _, u := range list {
			lastLogin := "never"
			if !u.LastLogin.IsZero() {
				lastLogin = u.LastLogin.Local().Format("2006-01-02 15:04")
			}
			name := u.Username
			if u.MustChangePassword {
				name += " *"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, u.Role, u.DisplayName, u.StoreName, lastLogin)
		}
		return w.Flush()
	})
}
