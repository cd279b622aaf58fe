// Package config resolves the suite configuration.
//
// Values come, lowest precedence first, from built-in defaults, an
// optional CUE file (lambda-e2e.cue), environment variables and explicit
// overrides such as command-line flags. The runtime version is required
// and is read from PYTHON_TEST_VERSION.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/bugsnag/lambda-e2e/internal/fixture"
	"github.com/bugsnag/lambda-e2e/internal/hostip"
	"github.com/bugsnag/lambda-e2e/internal/maze"
	"github.com/bugsnag/lambda-e2e/internal/sam"
)

//go:embed schema.cue
var schemaSource string

const (
	// FileName is the config file looked up in the working directory.
	FileName = "lambda-e2e.cue"

	// EnvPrefix prefixes environment overrides, e.g. LAMBDA_E2E_PORT.
	EnvPrefix = "LAMBDA_E2E"

	// RuntimeVersionEnv selects the Python runtime under test.
	RuntimeVersionEnv = "PYTHON_TEST_VERSION"

	// DefaultAPIKey is the notifier API key the harness expects.
	DefaultAPIKey = "12312312312312312312312312312312"

	DefaultService     = "aws-lambda"
	DefaultComposeFile = "features/fixtures/docker-compose.yml"
	DefaultFeatures    = "features"
)

// ErrRuntimeVersionRequired is returned when no runtime version is set.
var ErrRuntimeVersionRequired = errors.New(RuntimeVersionEnv + " must be set")

// Config is the resolved suite configuration.
type Config struct {
	RuntimeVersion string `mapstructure:"runtime_version"`
	APIKey         string `mapstructure:"api_key"`
	Port           int    `mapstructure:"port"`

	FixturesRoot   string   `mapstructure:"fixtures_root"`
	LibrarySources []string `mapstructure:"library_sources"`
	StagedName     string   `mapstructure:"staged_name"`

	Service     string   `mapstructure:"service"`
	Function    string   `mapstructure:"function"`
	BuildDir    string   `mapstructure:"build_dir"`
	ComposeFile string   `mapstructure:"compose_file"`
	Features    []string `mapstructure:"features"`

	HostSource    string `mapstructure:"host_source"`
	DockerDesktop bool   `mapstructure:"docker_desktop"`

	HistoryDB string `mapstructure:"history_db"`
	LogDir    string `mapstructure:"log_dir"`

	Harness HarnessConfig `mapstructure:"harness"`
}

// HarnessConfig mirrors maze.Options with waits in whole seconds.
type HarnessConfig struct {
	FileLog               bool `mapstructure:"file_log"`
	LogRequests           bool `mapstructure:"log_requests"`
	ReceiveRequestsWait   int  `mapstructure:"receive_requests_wait"`
	ReceiveNoRequestsWait int  `mapstructure:"receive_no_requests_wait"`
	SlowThreshold         int  `mapstructure:"slow_threshold"`
	EnforceIntegrity      bool `mapstructure:"enforce_integrity"`
}

// Defaults returns the configuration used when nothing overrides it.
// RuntimeVersion has no default.
func Defaults() Config {
	opts := maze.DefaultOptions()
	return Config{
		APIKey:         DefaultAPIKey,
		Port:           opts.Port,
		FixturesRoot:   fixture.DefaultRoot,
		LibrarySources: append([]string(nil), fixture.DefaultSources...),
		StagedName:     fixture.DefaultName,
		Service:        DefaultService,
		Function:       sam.DefaultFunction,
		BuildDir:       sam.DefaultBuildDir,
		ComposeFile:    DefaultComposeFile,
		Features:       []string{DefaultFeatures},
		HostSource:     hostip.SourceSystem,
		LogDir:         opts.LogDir,
		Harness: HarnessConfig{
			FileLog:               opts.FileLog,
			LogRequests:           opts.LogRequests,
			ReceiveRequestsWait:   int(opts.ReceiveRequestsWait / time.Second),
			ReceiveNoRequestsWait: int(opts.ReceiveNoRequestsWait / time.Second),
			SlowThreshold:         int(opts.ReceiveRequestsSlowThreshold / time.Second),
			EnforceIntegrity:      opts.EnforceBugsnagIntegrity,
		},
	}
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// File is an explicit config file. When empty, FileName in the working
	// directory is used if present.
	File string
	// Overrides take precedence over every other source. Keys use the
	// dotted config names, e.g. "harness.file_log".
	Overrides map[string]any
}

// Load resolves the configuration and returns it with the path of the
// config file that was read, if any.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("load config canceled: %w", err)
	}

	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("runtime_version", RuntimeVersionEnv, EnvPrefix+"_RUNTIME_VERSION"); err != nil {
		return nil, "", fmt.Errorf("bind runtime version: %w", err)
	}

	path := opts.File
	if path == "" && fileExists(FileName) {
		path = FileName
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", err
		}
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, path, nil
}

// Validate checks the resolved configuration against the schema.
func (c *Config) Validate() error {
	if c.RuntimeVersion == "" {
		return ErrRuntimeVersionRequired
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("internal error: compile config schema: %w", err)
	}

	value := schema.Unify(ctx.Encode(c.Map()))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Map returns the configuration keyed by config names.
func (c *Config) Map() map[string]any {
	return map[string]any{
		"runtime_version": c.RuntimeVersion,
		"api_key":         c.APIKey,
		"port":            c.Port,
		"fixtures_root":   c.FixturesRoot,
		"library_sources": c.LibrarySources,
		"staged_name":     c.StagedName,
		"service":         c.Service,
		"function":        c.Function,
		"build_dir":       c.BuildDir,
		"compose_file":    c.ComposeFile,
		"features":        c.Features,
		"host_source":     c.HostSource,
		"docker_desktop":  c.DockerDesktop,
		"history_db":      c.HistoryDB,
		"log_dir":         c.LogDir,
		"harness": map[string]any{
			"file_log":                 c.Harness.FileLog,
			"log_requests":             c.Harness.LogRequests,
			"receive_requests_wait":    c.Harness.ReceiveRequestsWait,
			"receive_no_requests_wait": c.Harness.ReceiveNoRequestsWait,
			"slow_threshold":           c.Harness.SlowThreshold,
			"enforce_integrity":        c.Harness.EnforceIntegrity,
		},
	}
}

// HarnessOptions converts the harness section to maze.Options.
func (c *Config) HarnessOptions() maze.Options {
	return maze.Options{
		FileLog:                      c.Harness.FileLog,
		LogDir:                       c.LogDir,
		LogRequests:                  c.Harness.LogRequests,
		ReceiveRequestsWait:          time.Duration(c.Harness.ReceiveRequestsWait) * time.Second,
		ReceiveNoRequestsWait:        time.Duration(c.Harness.ReceiveNoRequestsWait) * time.Second,
		ReceiveRequestsSlowThreshold: time.Duration(c.Harness.SlowThreshold) * time.Second,
		EnforceBugsnagIntegrity:      c.Harness.EnforceIntegrity,
		Port:                         c.Port,
	}
}

// Provisioner returns the fixture provisioner for this configuration.
func (c *Config) Provisioner() *fixture.Provisioner {
	return &fixture.Provisioner{
		Root:    c.FixturesRoot,
		Sources: c.LibrarySources,
		Name:    c.StagedName,
	}
}

func setDefaults(v *viper.Viper, d Config) {
	for key, value := range d.Map() {
		if key == "runtime_version" {
			continue
		}
		if section, ok := value.(map[string]any); ok {
			for k, sv := range section {
				v.SetDefault(key+"."+k, sv)
			}
			continue
		}
		v.SetDefault(key, value)
	}
}

// loadCUEIntoViper parses a CUE config file, validates it against
// #Config and merges it into v.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileString(schemaSource)
	if err := schemaValue.Err(); err != nil {
		return fmt.Errorf("internal error: compile config schema: %w", err)
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if err := userValue.Err(); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	unified := schemaValue.LookupPath(cue.ParsePath("#Config")).Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("validate %s: %w", path, err)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("merge %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
