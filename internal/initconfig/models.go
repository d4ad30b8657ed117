// filepath: internal/initconfig/models.go
package initconfig

// InitConfig is the root struct for parsing the TOML initialization file.
type InitConfig struct {
	Users    []InitUser             `toml:"user"`
	Settings map[string]interface{} `toml:"settings"`
}

// InitUser represents a user entry in the TOML config file.
type InitUser struct {
	Name        string `toml:"name"`
	Password    string `toml:"password"`
	Role        string `toml:"role"`
	DisplayName string `toml:"display_name,omitempty"`
	StoreName   string `toml:"store_name,omitempty"`
}

// Report summarises what Run did.
type Report struct {
	UsersCreated     []string
	UsersSkipped     []string
	UsersFailed      []string
	SettingsInserted []string
	SettingsSkipped  []string
	PasswordsCleared bool
}
