// filepath: internal/initconfig/init.go
package initconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"lostfound/internal/logging"
	"lostfound/internal/services"
	"lostfound/internal/shared"

	"github.com/BurntSushi/toml"
)

// Run executes the one-time initialization from the config file. Users that
// already exist and settings that already have a value are left alone, so
// running the same file twice is harmless. Afterwards the passwords in the
// file are blanked.
func Run(ctx context.Context, userSvc services.UserService, settingsSvc services.SettingsService, configPath string) (Report, error) {
	var report Report
	logging.Log.Infof("Initialization config file found at: %s. Processing...", configPath)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return report, fmt.Errorf("failed to read init config file '%s': %w", configPath, err)
	}

	var config InitConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return report, fmt.Errorf("failed to parse TOML init config file '%s': %w", configPath, err)
	}

	logging.Log.Infof("Found %d user(s) and %d setting(s) in init config.", len(config.Users), len(config.Settings))

	if err := processUsers(ctx, userSvc, config.Users, &report); err != nil {
		return report, err
	}
	if err := processSettings(ctx, settingsSvc, config.Settings, &report); err != nil {
		return report, err
	}

	report.PasswordsCleared = clearPasswords(&config, configPath)
	return report, nil
}

// processUsers creates every user that does not exist yet. A user that
// fails validation is logged and skipped; a storage failure stops the run.
func processUsers(ctx context.Context, userSvc services.UserService, users []InitUser, report *Report) error {
	for _, u := range users {
		if u.Name == "" || u.Password == "" {
			logging.Log.Warnf("Skipping user with empty name or password.")
			continue
		}

		_, err := userSvc.GetUserByUsername(ctx, u.Name)
		if err == nil {
			logging.Log.Infof("Skipping user: '%s' already exists.", u.Name)
			report.UsersSkipped = append(report.UsersSkipped, u.Name)
			continue
		}
		if !errors.Is(err, shared.ErrUserNotFound) {
			return fmt.Errorf("failed to check if user '%s' exists: %w", u.Name, err)
		}

		logging.Log.Infof("Creating user: '%s'...", u.Name)
		_, err = userSvc.Register(ctx, services.RegisterRequest{
			Actor:       services.ActorSystem,
			Username:    u.Name,
			Password:    u.Password,
			DisplayName: u.DisplayName,
			Role:        u.Role,
			StoreName:   u.StoreName,
		})
		switch {
		case err == nil:
			logging.Log.Infof("Successfully created user: '%s'", u.Name)
			report.UsersCreated = append(report.UsersCreated, u.Name)
		case errors.Is(err, shared.ErrDuplicateUsername):
			report.UsersSkipped = append(report.UsersSkipped, u.Name)
		case errors.Is(err, shared.ErrStorageUnavailable):
			return err
		default:
			logging.Log.Errorf("Failed to create user '%s': %v", u.Name, err)
			report.UsersFailed = append(report.UsersFailed, u.Name)
		}
	}
	return nil
}

// processSettings seeds the [settings] table. Strings are stored as they
// are; lists and other values are stored as JSON.
func processSettings(ctx context.Context, settingsSvc services.SettingsService, settings map[string]interface{}, report *Report) error {
	if len(settings) == 0 {
		return nil
	}
	values := make(map[string]string, len(settings))
	for k, v := range settings {
		s, err := settingValue(v)
		if err != nil {
			return fmt.Errorf("setting '%s': %w", k, err)
		}
		values[k] = s
	}

	seeded, err := settingsSvc.SeedDefaults(ctx, values)
	if err != nil {
		return err
	}
	report.SettingsInserted = seeded.Inserted
	report.SettingsSkipped = seeded.Skipped
	return nil
}

func settingValue(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// clearPasswords attempts to overwrite the config file with passwords removed.
func clearPasswords(config *InitConfig, configPath string) bool {
	logging.Log.Info("Attempting to clear passwords from init config file...")

	for i := range config.Users {
		config.Users[i].Password = ""
	}

	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(config); err != nil {
		logging.Log.Warnf("Could not re-encode config to clear passwords: %v", err)
		logging.Log.Warnf("SECURITY: Please manually remove passwords from '%s'", configPath)
		return false
	}

	if err := os.WriteFile(configPath, buf.Bytes(), 0o600); err != nil {
		logging.Log.Warnf("Failed to write back to config file to clear passwords: %v", err)
		logging.Log.Warnf("SECURITY: Please manually remove passwords from '%s'", configPath)
		return false
	}

	logging.Log.Info("Successfully cleared passwords from init config file.")
	return true
}
