package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName names the XDG subdirectories owned by primewrap
const AppName = "primewrap"

// Deleting this directory orphans every installed wrapper symlink.
const wrapperDirName = "ONLY_DELETE_IF_YOU_KNOW_WHAT_YOU_ARE_DOING"

type EnvVar struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

type OffloadCfg struct {
	Shell string   `yaml:"shell" json:"shell"` // Interpreter written to the wrapper shebang
	Env   []EnvVar `yaml:"env" json:"env"`     // Exported in order before exec
}

type HistoryCfg struct {
	Disabled      bool `yaml:"disabled" json:"disabled"`
	RetentionDays int  `yaml:"retention_days" json:"retention_days"` // Rows older than this are pruned on startup
}

type LoggingCfg struct {
	Dir          string `yaml:"dir" json:"dir"`
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type MetricsCfg struct {
	Textfile string `yaml:"textfile" json:"textfile"` // node_exporter textfile collector target, empty disables
}

type Config struct {
	WrapperDir     string     `yaml:"wrapper_dir" json:"wrapper_dir"`
	SelectionFile  string     `yaml:"selection_file" json:"selection_file"`
	DatabasePath   string     `yaml:"database_path" json:"database_path"`
	ProtectedPaths []string   `yaml:"protected_paths" json:"protected_paths"` // Extra reserved prefixes on top of /usr, /bin, /sbin
	Offload        OffloadCfg `yaml:"offload" json:"offload"`
	History        HistoryCfg `yaml:"history" json:"history"`
	Logging        LoggingCfg `yaml:"logging" json:"logging"`
	Metrics        MetricsCfg `yaml:"metrics" json:"metrics"`
}

var (
	errInvalidPath    = errors.New("path must be absolute")
	errInvalidEnvName = errors.New("invalid environment variable name")
	errNoEnv          = errors.New("offload.env must not be empty")
	errNegativeDays   = errors.New("retention and rotation days cannot be negative")

	envNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// DefaultOffloadEnv is the NVIDIA PRIME render offload environment.
func DefaultOffloadEnv() []EnvVar {
	return []EnvVar{
		{Name: "__NV_PRIME_RENDER_OFFLOAD", Value: "1"},
		{Name: "__GLX_VENDOR_LIBRARY_NAME", Value: "nvidia"},
		{Name: "__VK_LAYER_NV_optimus", Value: "NVIDIA_only"},
	}
}

// DefaultPath is where the config file is looked up when --config is not given
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Default returns a fully defaulted configuration
func Default() *Config {
	cfg := &Config{}
	// Defaults only produce absolute XDG paths, validation cannot fail here.
	_ = cfg.validateAndDefault()
	return cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path. When the file does not exist and the path was not
// given explicitly by the user, defaults are returned instead.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(cfg); err != nil {
		// An empty file decodes to io.EOF, treat it as all defaults
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) expandEnv() {
	c.WrapperDir = os.ExpandEnv(c.WrapperDir)
	c.SelectionFile = os.ExpandEnv(c.SelectionFile)
	c.DatabasePath = os.ExpandEnv(c.DatabasePath)
	c.Logging.Dir = os.ExpandEnv(c.Logging.Dir)
	c.Metrics.Textfile = os.ExpandEnv(c.Metrics.Textfile)
	for i := range c.ProtectedPaths {
		c.ProtectedPaths[i] = os.ExpandEnv(c.ProtectedPaths[i])
	}
}

func (c *Config) validateAndDefault() error {
	c.expandEnv()

	dataDir := filepath.Join(xdg.DataHome, AppName)
	stateDir := filepath.Join(xdg.StateHome, AppName)

	if c.WrapperDir == "" {
		c.WrapperDir = filepath.Join(dataDir, wrapperDirName)
	}
	if c.SelectionFile == "" {
		c.SelectionFile = filepath.Join(dataDir, "config", "config.txt")
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(stateDir, "history.db")
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = filepath.Join(stateDir, "log")
	}

	if c.History.RetentionDays < 0 || c.Logging.RotationDays < 0 {
		return errNegativeDays
	}
	if c.History.RetentionDays == 0 {
		c.History.RetentionDays = 90 // Default: keep three months of toggles
	}
	if c.Logging.RotationDays == 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}

	if c.Offload.Shell == "" {
		c.Offload.Shell = "/bin/bash"
	}
	if c.Offload.Env == nil {
		c.Offload.Env = DefaultOffloadEnv()
	}
	if len(c.Offload.Env) == 0 {
		return errNoEnv
	}
	for _, v := range c.Offload.Env {
		if !envNameRe.MatchString(v.Name) {
			return fmt.Errorf("%w: %q", errInvalidEnvName, v.Name)
		}
	}

	for _, p := range []*string{&c.WrapperDir, &c.SelectionFile, &c.DatabasePath, &c.Logging.Dir, &c.Offload.Shell} {
		cp, err := cleanAbsolute(*p)
		if err != nil {
			return err
		}
		*p = cp
	}
	if c.Metrics.Textfile != "" {
		cp, err := cleanAbsolute(c.Metrics.Textfile)
		if err != nil {
			return err
		}
		c.Metrics.Textfile = cp
	}

	cleaned := make([]string, 0, len(c.ProtectedPaths))
	for _, p := range c.ProtectedPaths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return err
		}
		cleaned = append(cleaned, cp)
	}
	c.ProtectedPaths = cleaned

	return nil
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}

// EnsureDirs creates the directories primewrap writes into. The wrapper
// directory is private to the user.
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.WrapperDir, 0o700); err != nil {
		return fmt.Errorf("create wrapper dir %s: %w", c.WrapperDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(c.SelectionFile), 0o755); err != nil {
		return fmt.Errorf("create selection dir: %w", err)
	}
	return nil
}

// LogFile returns the path of the primewrap log file
func (c *Config) LogFile() string {
	return filepath.Join(c.Logging.Dir, AppName+".log")
}
