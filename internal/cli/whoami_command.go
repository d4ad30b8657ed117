package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"lostfound/internal/services/auth"
	"lostfound/internal/shared"

	"github.com/spf13/cobra"
)

// EnvToken supplies the session token to whoami when --token is not given.
const EnvToken = "LOSTFOUND_TOKEN"

type WhoamiOptions struct {
	Token string
}

func NewWhoamiCommand(globalOptions *GlobalOptions) *cobra.Command {
	options := &WhoamiOptions{}
	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the user a session token belongs to",
		Long:  "Validates a token printed by 'login' and shows its user. The token is taken from --token, " + EnvToken + " or the first line of stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return whoami(cmd, globalOptions, options)
		},
	}
	whoamiCmd.Flags().StringVar(&options.Token, "token", "", "Session token. (Env: "+EnvToken+")")
	return whoamiCmd
}

func whoami(cmd *cobra.Command, globalOptions *GlobalOptions, options *WhoamiOptions) error {
	ctx := cmd.Context()

	token := options.Token
	if token == "" {
		token = os.Getenv(EnvToken)
	}
	if token == "" {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return plainError{errors.New("no session token given")}
		}
		token = line
	}
	token = strings.TrimSpace(token)

	// Without a secret no token was ever issued.
	if globalOptions.Conf.JWT.Secret == "" {
		return shared.ErrInvalidToken
	}
	tokens, err := auth.NewTokenService(globalOptions.Conf.JWT.Secret, globalOptions.Conf.SessionDuration)
	if err != nil {
		return err
	}
	claims, err := tokens.Validate(token)
	if err != nil {
		return err
	}

	rt, err := globalOptions.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	// The role may have changed since the token was issued.
	user, err := rt.Users.GetUserByUsername(ctx, claims.Username)
	if errors.Is(err, shared.ErrUserNotFound) {
		return fmt.Errorf("%w: user '%s' no longer exists", shared.ErrInvalidToken, claims.Username)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", user.Username, user.Role)
	if claims.ExpiresAt != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Session valid until %s\n", claims.ExpiresAt.Time.Local().Format(time.RFC1123))
	}
	return nil
}
