package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
)

// Config represents the entire application configuration
type Config struct {
	Issuer        IssuerConfig        `mapstructure:"issuer"`
	SystemAccount SystemAccountConfig `mapstructure:"system_account"`
	Repository    RepositoryConfig    `mapstructure:"repository"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// IssuerConfig describes the OAuth2 issuer and the ownCloud endpoints
type IssuerConfig struct {
	Name          string   `mapstructure:"name"`
	BaseURL       string   `mapstructure:"base_url"`
	WebDAVURL     string   `mapstructure:"webdav_url"`
	OCSURL        string   `mapstructure:"ocs_url"`
	AuthURL       string   `mapstructure:"auth_url"`
	TokenURL      string   `mapstructure:"token_url"`
	ClientID      string   `mapstructure:"client_id"`
	ClientSecret  string   `mapstructure:"client_secret"`
	Scopes        []string `mapstructure:"scopes"`
	SkipTLSVerify bool     `mapstructure:"skip_tls_verify"`
}

// SystemAccountConfig contains the shared system account
type SystemAccountConfig struct {
	Username     string `mapstructure:"username"`
	RefreshToken string `mapstructure:"refresh_token"` // used once, until a token is stored
}

// RepositoryConfig contains provisioning settings
type RepositoryConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	ControlledLinkFolder string        `mapstructure:"controlled_link_folder"`
	ShareDuration        int64         `mapstructure:"share_duration"` // seconds
	TransferMode         string        `mapstructure:"transfer_mode"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	RetryAfter           time.Duration `mapstructure:"retry_after"` // advertised after transport failures
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr          string        `mapstructure:"bind_addr"`
	APIUsername       string        `mapstructure:"api_username"`
	APIPassword       string        `mapstructure:"api_password"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ProvisionInterval time.Duration `mapstructure:"provision_interval"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MaintenanceConfig contains periodic cleanup settings
type MaintenanceConfig struct {
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// MetricsConfig toggles the prometheus endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EnvPrefix prefixes environment overrides, e.g. CONTROLLED_LINK_ISSUER_CLIENT_SECRET
const EnvPrefix = "CONTROLLED_LINK"

// Load loads configuration from the specified file path
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("issuer.name", "owncloud")
	v.SetDefault("issuer.scopes", []string{})
	v.SetDefault("issuer.skip_tls_verify", false)
	v.SetDefault("issuer.client_id", "")
	v.SetDefault("issuer.client_secret", "")
	v.SetDefault("system_account.username", "")
	v.SetDefault("system_account.refresh_token", "")
	v.SetDefault("repository.enabled", true)
	v.SetDefault("repository.controlled_link_folder", "Moodlefiles")
	v.SetDefault("repository.share_duration", 604800)
	v.SetDefault("repository.transfer_mode", string(domain.TransferNone))
	v.SetDefault("repository.request_timeout", "30s")
	v.SetDefault("repository.retry_after", "30s")
	v.SetDefault("http.bind_addr", "0.0.0.0:8080")
	v.SetDefault("http.api_username", "moodle")
	v.SetDefault("http.api_password", "")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "5m")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.provision_interval", "2s")
	v.SetDefault("database.path", "controlled-link.db")
	v.SetDefault("maintenance.prune_interval", "1h")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&config, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Issuer.ToDomain().Validate(); err != nil {
		return err
	}
	if c.Issuer.AuthURL != "" {
		if _, err := url.Parse(c.Issuer.AuthURL); err != nil {
			return fmt.Errorf("invalid issuer.auth_url: %w", err)
		}
	}
	if c.Issuer.ClientID == "" {
		return fmt.Errorf("issuer.client_id is required")
	}

	if c.SystemAccount.Username == "" {
		return fmt.Errorf("system_account.username is required")
	}

	if strings.Trim(c.Repository.ControlledLinkFolder, "/ ") == "" {
		return fmt.Errorf("repository.controlled_link_folder is required")
	}
	if c.Repository.ShareDuration <= 0 {
		return fmt.Errorf("repository.share_duration must be positive")
	}
	if !domain.TransferMode(c.Repository.TransferMode).Valid() {
		return fmt.Errorf("invalid repository.transfer_mode: %s", c.Repository.TransferMode)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// ToDomain returns the issuer descriptor used by the provisioner
func (c *IssuerConfig) ToDomain() *domain.Issuer {
	return &domain.Issuer{
		Name:      c.Name,
		BaseURL:   c.BaseURL,
		WebDAVURL: c.WebDAVURL,
		OCSURL:    c.OCSURL,
		AuthURL:   c.AuthURL,
		TokenURL:  c.TokenURL,
	}
}

// GetShareDuration returns the share duration as time.Duration
func (c *RepositoryConfig) GetShareDuration() time.Duration {
	if c.ShareDuration <= 0 {
		return 604800 * time.Second
	}
	return time.Duration(c.ShareDuration) * time.Second
}

// GetRequestTimeout returns the per call timeout
func (c *RepositoryConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return c.RequestTimeout
}

// GetRetryAfter returns the delay advertised to callers after a transport failure
func (c *RepositoryConfig) GetRetryAfter() time.Duration {
	if c.RetryAfter <= 0 {
		return 30 * time.Second
	}
	return c.RetryAfter
}

// GetTransferMode returns the transfer mode
func (c *RepositoryConfig) GetTransferMode() domain.TransferMode {
	if c.TransferMode == "" {
		return domain.TransferNone
	}
	return domain.TransferMode(c.TransferMode)
}

// GetReadTimeout returns the read timeout
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	if c.ReadTimeout == 0 {
		return 30 * time.Second
	}
	return c.ReadTimeout
}

// GetWriteTimeout returns the write timeout
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	if c.WriteTimeout == 0 {
		return 5 * time.Minute
	}
	return c.WriteTimeout
}

// GetIdleTimeout returns the idle timeout
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	if c.IdleTimeout == 0 {
		return 60 * time.Second
	}
	return c.IdleTimeout
}

// GetProvisionInterval returns the minimum interval between two
// provisioning requests of the same user
func (c *HTTPConfig) GetProvisionInterval() time.Duration {
	if c.ProvisionInterval <= 0 {
		return 2 * time.Second
	}
	return c.ProvisionInterval
}

// GetPruneInterval returns the link pruning interval
func (c *MaintenanceConfig) GetPruneInterval() time.Duration {
	if c.PruneInterval <= 0 {
		return time.Hour
	}
	return c.PruneInterval
}
