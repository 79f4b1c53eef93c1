package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/jcdickinson/daemonize/internal/launch"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	DefaultSyslogTag      = "daemonize"
	DefaultWorkDir        = "/"
	DefaultFallbackMaxFDs = 256
)

// ProgramConfig is a named executable that `daemonize start` can launch.
type ProgramConfig struct {
	Path string   `mapstructure:"path"`
	Args []string `mapstructure:"args"`
	// Argv0 overrides the top-level policy when set.
	Argv0 string `mapstructure:"argv0"`
	Name  string `mapstructure:"name"`
}

type Config struct {
	Argv0          launch.Argv0Policy       `mapstructure:"argv0"`
	Name           string                   `mapstructure:"name"`
	WorkDir        string                   `mapstructure:"work_dir"`
	Umask          int                      `mapstructure:"umask"`
	NullDevice     string                   `mapstructure:"null_device"`
	FallbackMaxFDs int                      `mapstructure:"fallback_max_fds"`
	SyslogTag      string                   `mapstructure:"syslog_tag"`
	Programs       map[string]ProgramConfig `mapstructure:"programs"`
}

// Request builds the launch request for a configured program, falling back
// to the top-level argv0 policy and fixed name.
func (c *Config) Request(name string) (launch.Request, error) {
	p, ok := c.Programs[name]
	if !ok {
		return launch.Request{}, fmt.Errorf("unknown program %q", name)
	}

	policy := c.Argv0
	if p.Argv0 != "" {
		var err error
		if policy, err = launch.ParsePolicy(p.Argv0); err != nil {
			return launch.Request{}, fmt.Errorf("program %q: %w", name, err)
		}
	}
	fixed := c.Name
	if p.Name != "" {
		fixed = p.Name
	}

	req, err := launch.New(p.Path, p.Args, policy, fixed)
	if err != nil {
		return launch.Request{}, fmt.Errorf("program %q: %w", name, err)
	}
	return req, nil
}

// ProgramNames returns the configured program names in sorted order.
func (c *Config) ProgramNames() []string {
	names := make([]string, 0, len(c.Programs))
	for name := range c.Programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// configDir returns the directory searched for config.toml after ".".
// Checks XDG_CONFIG_HOME, then ~/.config.
func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "daemonize")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "daemonize")
	}
	return ""
}

// InitializeViper configures v with defaults, search paths and the
// DAEMONIZE_ environment prefix. An explicit configFile replaces the search.
func InitializeViper(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if dir := configDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	v.SetDefault("argv0", launch.Argv0Basename.String())
	v.SetDefault("name", launch.DefaultFixedName)
	v.SetDefault("work_dir", DefaultWorkDir)
	v.SetDefault("umask", 0)
	v.SetDefault("null_device", os.DevNull)
	v.SetDefault("fallback_max_fds", DefaultFallbackMaxFDs)
	v.SetDefault("syslog_tag", DefaultSyslogTag)

	v.SetEnvPrefix("DAEMONIZE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func stringToArgv0PolicyHookFunc() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(launch.Argv0Policy(0)) {
			return data, nil
		}
		if f.Kind() == reflect.String {
			return launch.ParsePolicy(data.(string))
		}
		return data, nil
	}
}

// Load reads configuration from configFile, or from the default search
// path when configFile is empty.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	if err := InitializeViper(v, configFile); err != nil {
		return nil, err
	}

	var config Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       stringToArgv0PolicyHookFunc(),
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.WorkDir == "" {
		c.WorkDir = DefaultWorkDir
	}
	if c.NullDevice == "" {
		c.NullDevice = os.DevNull
	}
	if c.SyslogTag == "" {
		c.SyslogTag = DefaultSyslogTag
	}
	if c.FallbackMaxFDs <= 3 {
		return fmt.Errorf("fallback_max_fds must be greater than 3, got %d", c.FallbackMaxFDs)
	}
	if c.Umask < 0 || c.Umask > 0o777 {
		return fmt.Errorf("umask %#o out of range", c.Umask)
	}
	return nil
}
