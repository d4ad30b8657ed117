package cli

import (
	"fmt"
	"time"

	"lostfound/internal/config"
	"lostfound/internal/logging"
	"lostfound/internal/services/auth"

	"github.com/spf13/cobra"
)

func NewLoginCommand(globalOptions *GlobalOptions) *cobra.Command {
	loginCmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Check a password and print a session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return login(cmd, globalOptions, args[0])
		},
	}
	return loginCmd
}

func login(cmd *cobra.Command, globalOptions *GlobalOptions, username string) error {
	ctx := cmd.Context()

	password, err := newPrompter(cmd).Password("Password: ")
	if err != nil {
		return err
	}

	rt, err := globalOptions.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	user, err := rt.Users.Authenticate(ctx, username, password)
	if err != nil {
		return err
	}

	secret, err := ensureJWTSecret(globalOptions.Conf, globalOptions.CfgFilePath)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(secret, globalOptions.Conf.SessionDuration)
	if err != nil {
		return err
	}
	token, expiry, err := tokens.Issue(user)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "Logged in as %s (%s), session valid until %s\n", user.Username, user.Role, expiry.Local().Format(time.RFC1123))
	if user.MustChangePassword {
		fmt.Fprintln(cmd.ErrOrStderr(), "You must change your password: lostfound user passwd "+user.Username)
	}
	return nil
}

// ensureJWTSecret returns the configured secret, generating and saving one
// on first use.
func ensureJWTSecret(cfg *config.Config, cfgPath string) (string, error) {
	if cfg.JWT.Secret != "" {
		return cfg.JWT.Secret, nil
	}

	logging.Log.Info("Generating new random JWT secret...")
	secret, err := auth.GenerateSecret()
	if err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg.JWT.Secret = secret
	if err := config.SaveConfig(cfgPath, cfg); err != nil {
		// Tokens from this run stay valid only until the next run.
		logging.Log.Warnf("Failed to save new JWT secret to %s: %v", cfgPath, err)
	} else {
		logging.Log.Infof("New JWT secret saved to %s.", cfgPath)
	}
	return secret, nil
}
