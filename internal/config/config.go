// ABOUTME: Configuration loading and parsing for gateway-sentry
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway-sentry configuration
type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway"`
	Auth        AuthConfig        `yaml:"auth"`
	Login       LoginConfig       `yaml:"login"`
	TwoFA       TwoFAConfig       `yaml:"two_fa"`
	Browser     BrowserConfig     `yaml:"browser"`
	Secrets     SecretsConfig     `yaml:"secrets"`
	Health      HealthConfig      `yaml:"health"`
	Store       StoreConfig       `yaml:"store"`
	Outputs     OutputsConfig     `yaml:"outputs"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// GatewayConfig describes how to reach and manage the gateway process
type GatewayConfig struct {
	BaseURL      string `yaml:"base_url"`
	Dir          string `yaml:"dir"`           // gateway installation directory, used by start/kill
	ProcessMatch string `yaml:"process_match"` // substring matched against process names

	RouteAuth           string `yaml:"route_auth"`
	RouteTickle         string `yaml:"route_tickle"`
	RouteValidate       string `yaml:"route_validate"`
	RouteLogout         string `yaml:"route_logout"`
	RouteReauthenticate string `yaml:"route_reauthenticate"`
	RouteInitialise     string `yaml:"route_initialise"`

	CACertPath string `yaml:"ca_cert_path"` // verify TLS against this CA; empty skips verification

	RequestRetries int `yaml:"request_retries"`

	StartupGrace   time.Duration `yaml:"-"`
	RequestTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	StartupGraceRaw   string `yaml:"startup_grace"`
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// AuthConfig selects and tunes the authentication strategy
type AuthConfig struct {
	Strategy              string `yaml:"strategy"` // "A" or "B"
	RestartFailedSessions bool   `yaml:"restart_failed_sessions"`
	MaxReauthRetries      int    `yaml:"max_reauthenticate_retries"`
	MaxStatusCheckRetries int    `yaml:"max_status_check_retries"`

	ReauthenticateWait time.Duration `yaml:"-"`
	RestartWait        time.Duration `yaml:"-"`

	ReauthenticateWaitRaw string `yaml:"reauthenticate_wait"`
	RestartWaitRaw        string `yaml:"restart_wait"`
}

// LoginConfig tunes the credential submission state machine
type LoginConfig struct {
	MaxImmediateAttempts int `yaml:"max_immediate_attempts"`
	MaxFailedAuth        int `yaml:"max_failed_auth"` // lockout guard; 0 disables

	MinPresubmitBuffer  time.Duration `yaml:"-"`
	MaxPresubmitBuffer  time.Duration `yaml:"-"`
	PresubmitBufferStep time.Duration `yaml:"-"`
	TriggerTimeout      time.Duration `yaml:"-"` // wait for post-submit trigger conditions

	MinPresubmitBufferRaw  string `yaml:"min_presubmit_buffer"`
	MaxPresubmitBufferRaw  string `yaml:"max_presubmit_buffer"`
	PresubmitBufferStepRaw string `yaml:"presubmit_buffer_step"`
	TriggerTimeoutRaw      string `yaml:"trigger_timeout"`

	// Targets overrides the per-role DOM locators, keyed by role name
	// (USER_NAME, PASSWORD, SUBMIT, ERROR, SUCCESS, TWO_FA, TWO_FA_SELECT,
	// TWO_FA_NOTIFICATION, TWO_FA_INPUT, IBKEY_PROMO). Values use the
	// KIND@@identifier form, e.g. "NAME@@username".
	Targets map[string]string `yaml:"targets"`
}

// TwoFAConfig selects and configures the two-factor handler
type TwoFAConfig struct {
	Handler      string `yaml:"handler"` // TOTP, EXTERNAL_REQUEST, NOTIFICATION_RESEND, COMMAND; empty disables
	SelectTarget string `yaml:"select_target"`
	StrictCode   bool   `yaml:"strict_code"`

	TOTPSecret string `yaml:"totp_secret"`

	ExternalRequestMethod  string            `yaml:"external_request_method"`
	ExternalRequestURL     string            `yaml:"external_request_url"`
	ExternalRequestHeaders map[string]string `yaml:"external_request_headers"`

	Command string `yaml:"command"` // executable invoked by the COMMAND handler

	NotificationResendRetries int `yaml:"notification_resend_retries"`

	ExternalRequestTimeout     time.Duration `yaml:"-"`
	NotificationResendInterval time.Duration `yaml:"-"`

	ExternalRequestTimeoutRaw     string `yaml:"external_request_timeout"`
	NotificationResendIntervalRaw string `yaml:"notification_resend_interval"`
}

// BrowserConfig tunes the browser session used for login
type BrowserConfig struct {
	Headless    bool    `yaml:"headless"`
	Incognito   bool    `yaml:"incognito"`
	UIScaling   float64 `yaml:"ui_scaling"`
	UserDataDir string  `yaml:"user_data_dir"`

	PageLoadTimeout    time.Duration `yaml:"-"`
	PageLoadTimeoutRaw string        `yaml:"page_load_timeout"`
}

// SecretsConfig selects where credential values come from
type SecretsConfig struct {
	Source     string `yaml:"source"` // "env", "fs" or "gcp"
	GCPBaseURL string `yaml:"gcp_base_url"`
}

// HealthConfig holds the liveness/readiness server configuration
type HealthConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig holds the attempt audit store configuration
type StoreConfig struct {
	Path string `yaml:"path"` // empty disables the audit store
}

// OutputsConfig holds diagnostic output configuration
type OutputsConfig struct {
	Dir              string `yaml:"dir"`
	ErrorScreenshots bool   `yaml:"error_screenshots"`
}

// MaintenanceConfig holds the maintenance cadence configuration
type MaintenanceConfig struct {
	StartActive bool `yaml:"start_active"`

	Interval    time.Duration `yaml:"-"`
	IntervalRaw string        `yaml:"interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with the values used when a field is
// absent from the YAML file.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:             "https://localhost:5000",
			RouteAuth:           "/sso/Login?forwardTo=22&RL=1&ip2loc=on",
			RouteTickle:         "/v1/api/tickle",
			RouteValidate:       "/v1/portal/sso/validate",
			RouteLogout:         "/v1/api/logout",
			RouteReauthenticate: "/v1/portal/iserver/reauthenticate?force=true",
			RouteInitialise:     "/v1/api/iserver/auth/ssodh/init",
			RequestRetries:      1,
			StartupGrace:        3 * time.Second,
			RequestTimeout:      15 * time.Second,
		},
		Auth: AuthConfig{
			Strategy:              "A",
			MaxReauthRetries:      3,
			MaxStatusCheckRetries: 5,
			ReauthenticateWait:    5 * time.Second,
			RestartWait:           15 * time.Second,
		},
		Login: LoginConfig{
			MaxImmediateAttempts: 1,
			MaxFailedAuth:        5,
			MinPresubmitBuffer:   1 * time.Second,
			MaxPresubmitBuffer:   30 * time.Second,
			PresubmitBufferStep:  5 * time.Second,
			TriggerTimeout:       60 * time.Second,
		},
		TwoFA: TwoFAConfig{
			StrictCode:                 true,
			ExternalRequestMethod:      "GET",
			ExternalRequestTimeout:     5 * time.Minute,
			NotificationResendRetries:  10,
			NotificationResendInterval: 10 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:        true,
			Incognito:       true,
			UIScaling:       1,
			PageLoadTimeout: 15 * time.Second,
		},
		Secrets: SecretsConfig{
			Source: "env",
		},
		Health: HealthConfig{
			Addr: "localhost:5001",
		},
		Outputs: OutputsConfig{
			Dir:              "outputs",
			ErrorScreenshots: true,
		},
		Maintenance: MaintenanceConfig{
			StartActive: true,
			Interval:    60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}

	if c.Auth.Strategy == "" {
		return fmt.Errorf("auth.strategy is required")
	}
	// Unknown strategy values are tolerated here; the strategy layer logs a
	// warning and falls back to A at runtime.

	switch c.Secrets.Source {
	case "env", "fs", "gcp":
	default:
		return fmt.Errorf("secrets.source must be one of env, fs, gcp; got %q", c.Secrets.Source)
	}

	if c.Secrets.Source == "gcp" && c.Secrets.GCPBaseURL == "" {
		return fmt.Errorf("secrets.gcp_base_url is required when secrets.source is gcp")
	}

	if c.Login.MinPresubmitBuffer > c.Login.MaxPresubmitBuffer {
		return fmt.Errorf("login.min_presubmit_buffer (%s) exceeds login.max_presubmit_buffer (%s)",
			c.Login.MinPresubmitBuffer, c.Login.MaxPresubmitBuffer)
	}

	switch c.TwoFA.Handler {
	case "TOTP":
		if c.TwoFA.TOTPSecret == "" {
			return fmt.Errorf("two_fa.totp_secret is required when two_fa.handler is TOTP")
		}
	case "EXTERNAL_REQUEST":
		if c.TwoFA.ExternalRequestURL == "" {
			return fmt.Errorf("two_fa.external_request_url is required when two_fa.handler is EXTERNAL_REQUEST")
		}
	case "COMMAND":
		if c.TwoFA.Command == "" {
			return fmt.Errorf("two_fa.command is required when two_fa.handler is COMMAND")
		}
	case "", "NOTIFICATION_RESEND":
	default:
		return fmt.Errorf("two_fa.handler must be one of TOTP, EXTERNAL_REQUEST, NOTIFICATION_RESEND, COMMAND; got %q", c.TwoFA.Handler)
	}

	return nil
}

// durationField pairs a raw YAML string with its parsed destination.
type durationField struct {
	name string
	raw  string
	dst  *time.Duration
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []durationField{
		{"gateway.startup_grace", cfg.Gateway.StartupGraceRaw, &cfg.Gateway.StartupGrace},
		{"gateway.request_timeout", cfg.Gateway.RequestTimeoutRaw, &cfg.Gateway.RequestTimeout},
		{"auth.reauthenticate_wait", cfg.Auth.ReauthenticateWaitRaw, &cfg.Auth.ReauthenticateWait},
		{"auth.restart_wait", cfg.Auth.RestartWaitRaw, &cfg.Auth.RestartWait},
		{"login.min_presubmit_buffer", cfg.Login.MinPresubmitBufferRaw, &cfg.Login.MinPresubmitBuffer},
		{"login.max_presubmit_buffer", cfg.Login.MaxPresubmitBufferRaw, &cfg.Login.MaxPresubmitBuffer},
		{"login.presubmit_buffer_step", cfg.Login.PresubmitBufferStepRaw, &cfg.Login.PresubmitBufferStep},
		{"login.trigger_timeout", cfg.Login.TriggerTimeoutRaw, &cfg.Login.TriggerTimeout},
		{"two_fa.external_request_timeout", cfg.TwoFA.ExternalRequestTimeoutRaw, &cfg.TwoFA.ExternalRequestTimeout},
		{"two_fa.notification_resend_interval", cfg.TwoFA.NotificationResendIntervalRaw, &cfg.TwoFA.NotificationResendInterval},
		{"browser.page_load_timeout", cfg.Browser.PageLoadTimeoutRaw, &cfg.Browser.PageLoadTimeout},
		{"maintenance.interval", cfg.Maintenance.IntervalRaw, &cfg.Maintenance.Interval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
