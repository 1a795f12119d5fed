package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeKey      = "key"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Storage StorageConfig     `yaml:"storage"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig holds the content roots and the metadata database path.
// FilesRoot and NotesRoot must not overlap: notes are indexed by id and
// would otherwise collide with plain files.
type StorageConfig struct {
	FilesRoot string `yaml:"files_root"`
	NotesRoot string `yaml:"notes_root"`
	Database  string `yaml:"database"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.FilesRoot, validation.Required),
		validation.Field(&c.NotesRoot, validation.Required),
		validation.Field(&c.Database, validation.Required),
	); err != nil {
		return err
	}
	if c.FilesRoot == c.NotesRoot {
		return fmt.Errorf("storage: files_root and notes_root must differ")
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for
//     single-user local setups.
//   - "key": SSH-key challenge-response; AuthorizedKeys must point to an
//     authorized_keys file.
type AuthConfig struct {
	Mode                   string `yaml:"mode"`
	AuthorizedKeys         string `yaml:"authorized_keys"`
	TokenExpirySeconds     int64  `yaml:"token_expiry_seconds"`
	ChallengeExpirySeconds int64  `yaml:"challenge_expiry_seconds"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeKey)),
		validation.Field(&c.TokenExpirySeconds, validation.Min(0)),
		validation.Field(&c.ChallengeExpirySeconds, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeKey && c.AuthorizedKeys == "" {
		return fmt.Errorf("auth: mode is %q but authorized_keys is empty", AuthModeKey)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeKey
}

// TokenExpiry returns the token lifetime as a duration.
func (c *AuthConfig) TokenExpiry() time.Duration {
	return time.Duration(c.TokenExpirySeconds) * time.Second
}

// ChallengeExpiry returns the challenge lifetime as a duration.
func (c *AuthConfig) ChallengeExpiry() time.Duration {
	return time.Duration(c.ChallengeExpirySeconds) * time.Second
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			FilesRoot: "./data/files",
			NotesRoot: "./data/notes",
			Database:  "./syncbox.db",
		},
		Auth: AuthConfig{
			Mode:                   AuthModeDisabled,
			AuthorizedKeys:         "./authorized_keys",
			TokenExpirySeconds:     86400,
			ChallengeExpirySeconds: 300,
		},
	}
}
