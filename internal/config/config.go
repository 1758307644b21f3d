// File: internal/config/config.go
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Supported values for web.browser.
const (
	BrowserChrome  = "chrome"
	BrowserEdge    = "edge"
	BrowserFirefox = "firefox"
	BrowserWebKit  = "webkit"
	BrowserRemote  = "remote"
	BrowserSim     = "sim"
)

// Supported values for mobile.backend.
const (
	MobileBackendAppium = "appium"
	MobileBackendSim    = "sim"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Web     WebConfig     `mapstructure:"web" yaml:"web"`
	Mobile  MobileConfig  `mapstructure:"mobile" yaml:"mobile"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	Run     RunConfig     `mapstructure:"run" yaml:"run"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// WebConfig configures browser sessions and web page objects.
type WebConfig struct {
	Browser  string `mapstructure:"browser" yaml:"browser"`
	Headless bool   `mapstructure:"headless" yaml:"headless"`
	// ImplicitWait is the session-wide lookup fallback applied by the driver.
	ImplicitWait time.Duration `mapstructure:"implicit_wait" yaml:"implicit_wait"`
	// ExplicitWait is the default budget of the condition poller.
	ExplicitWait    time.Duration `mapstructure:"explicit_wait" yaml:"explicit_wait"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	EnglishURL      string        `mapstructure:"en_url" yaml:"en_url"`
	WindowWidth     int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int           `mapstructure:"window_height" yaml:"window_height"`
	ExecPath        string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	// RemoteURL is the W3C WebDriver endpoint used when Browser is "remote".
	RemoteURL     string `mapstructure:"remote_url" yaml:"remote_url"`
	RemoteBrowser string `mapstructure:"remote_browser" yaml:"remote_browser"`
}

// MobileConfig configures Appium sessions and mobile screen objects.
type MobileConfig struct {
	Backend              string        `mapstructure:"backend" yaml:"backend"`
	AppiumServerURL      string        `mapstructure:"appium_server_url" yaml:"appium_server_url"`
	PlatformName         string        `mapstructure:"platform_name" yaml:"platform_name"`
	PlatformVersion      string        `mapstructure:"platform_version" yaml:"platform_version"`
	DeviceName           string        `mapstructure:"device_name" yaml:"device_name"`
	AutomationName       string        `mapstructure:"automation_name" yaml:"automation_name"`
	AppPackage           string        `mapstructure:"app_package" yaml:"app_package"`
	AppActivity          string        `mapstructure:"app_activity" yaml:"app_activity"`
	APKPath              string        `mapstructure:"apk_path" yaml:"apk_path"`
	ImplicitWait         time.Duration `mapstructure:"implicit_wait" yaml:"implicit_wait"`
	ExplicitWait         time.Duration `mapstructure:"explicit_wait" yaml:"explicit_wait"`
	PollInterval         time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	NoReset              bool          `mapstructure:"no_reset" yaml:"no_reset"`
	FullReset            bool          `mapstructure:"full_reset" yaml:"full_reset"`
	AutoGrantPermissions bool          `mapstructure:"auto_grant_permissions" yaml:"auto_grant_permissions"`
	NewCommandTimeout    time.Duration `mapstructure:"new_command_timeout" yaml:"new_command_timeout"`
	// CommandRate caps requests per second sent to the Appium server.
	CommandRate float64 `mapstructure:"command_rate" yaml:"command_rate"`
}

// MetricsConfig controls the Prometheus textfile written after a run.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Output is "stdout" or a file path.
	Output string `mapstructure:"output" yaml:"output"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// RunConfig holds per-invocation settings, usually driven by CLI flags.
type RunConfig struct {
	QueriesFile  string   `mapstructure:"queries_file" yaml:"queries_file"`
	ArtifactsDir string   `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
	Only         []string `mapstructure:"only" yaml:"only"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wikiprobe")
	v.SetDefault("logger.log_file", "wikiprobe.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Web --
	v.SetDefault("web.browser", BrowserChrome)
	v.SetDefault("web.headless", true)
	v.SetDefault("web.implicit_wait", 10*time.Second)
	v.SetDefault("web.explicit_wait", 15*time.Second)
	v.SetDefault("web.page_load_timeout", 30*time.Second)
	v.SetDefault("web.poll_interval", 500*time.Millisecond)
	v.SetDefault("web.base_url", "https://www.wikipedia.org")
	v.SetDefault("web.en_url", "https://en.wikipedia.org/wiki/Main_Page")
	v.SetDefault("web.window_width", 1920)
	v.SetDefault("web.window_height", 1080)
	v.SetDefault("web.remote_browser", BrowserChrome)

	// -- Mobile --
	v.SetDefault("mobile.backend", MobileBackendAppium)
	v.SetDefault("mobile.appium_server_url", "http://127.0.0.1:4723")
	v.SetDefault("mobile.platform_name", "Android")
	v.SetDefault("mobile.platform_version", "13.0")
	v.SetDefault("mobile.device_name", "emulator-5554")
	v.SetDefault("mobile.automation_name", "UiAutomator2")
	v.SetDefault("mobile.app_package", "org.wikipedia")
	v.SetDefault("mobile.app_activity", "org.wikipedia.main.MainActivity")
	v.SetDefault("mobile.implicit_wait", 10*time.Second)
	v.SetDefault("mobile.explicit_wait", 20*time.Second)
	v.SetDefault("mobile.poll_interval", 500*time.Millisecond)
	v.SetDefault("mobile.no_reset", false)
	v.SetDefault("mobile.full_reset", false)
	v.SetDefault("mobile.auto_grant_permissions", true)
	v.SetDefault("mobile.new_command_timeout", 300*time.Second)
	v.SetDefault("mobile.command_rate", 20.0)

	// -- Metrics / Tracing --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile", "wikiprobe.prom")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.output", "stdout")
	v.SetDefault("tracing.pretty", false)

	// -- Run --
	v.SetDefault("run.artifacts_dir", "artifacts")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The Appium URL is commonly provided by CI device farms.
	_ = v.BindEnv("mobile.appium_server_url", "WIKIPROBE_APPIUM_URL", "APPIUM_SERVER_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Mobile.APKPath, &c.Run.ArtifactsDir, &c.Run.QueriesFile, &c.Logger.LogFile, &c.Metrics.Textfile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the settings every run needs. Mobile specific keys are
// checked separately by ValidateMobile so web-only runs do not require them.
func (c *Config) Validate() error {
	if err := c.Web.Validate(); err != nil {
		return fmt.Errorf("web: %w", err)
	}
	if c.Mobile.ExplicitWait <= 0 || c.Mobile.PollInterval <= 0 {
		return fmt.Errorf("mobile: explicit_wait and poll_interval must be positive durations")
	}
	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return fmt.Errorf("metrics.textfile is required when metrics are enabled")
	}
	return nil
}

// Validate checks the WebConfig settings.
func (w *WebConfig) Validate() error {
	switch strings.ToLower(w.Browser) {
	case BrowserChrome, BrowserEdge, BrowserFirefox, BrowserWebKit, BrowserSim:
	case BrowserRemote:
		if w.RemoteURL == "" {
			return fmt.Errorf("remote_url is required when browser is %q", BrowserRemote)
		}
	default:
		return fmt.Errorf("unsupported browser %q", w.Browser)
	}
	if w.BaseURL == "" {
		return fmt.Errorf("base_url is a required configuration field")
	}
	if w.EnglishURL == "" {
		return fmt.Errorf("en_url is a required configuration field")
	}
	if w.ExplicitWait <= 0 || w.PollInterval <= 0 || w.PageLoadTimeout <= 0 {
		return fmt.Errorf("explicit_wait, poll_interval and page_load_timeout must be positive durations")
	}
	if w.ImplicitWait < 0 {
		return fmt.Errorf("implicit_wait cannot be negative")
	}
	return nil
}

// ValidateMobile checks the capabilities an Appium session cannot start without.
func (c *Config) ValidateMobile() error {
	m := c.Mobile
	if m.Backend == MobileBackendSim {
		return nil
	}
	if m.Backend != MobileBackendAppium {
		return fmt.Errorf("mobile: unsupported backend %q", m.Backend)
	}
	required := map[string]string{
		"appium_server_url": m.AppiumServerURL,
		"platform_name":     m.PlatformName,
		"device_name":       m.DeviceName,
		"automation_name":   m.AutomationName,
		"app_package":       m.AppPackage,
		"app_activity":      m.AppActivity,
	}
	var missing []string
	for key, val := range required {
		if val == "" {
			missing = append(missing, "mobile."+key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if m.CommandRate < 0 {
		return fmt.Errorf("mobile.command_rate cannot be negative")
	}
	return nil
}
