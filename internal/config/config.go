package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config contains the program configuration. It is loaded once and then
// passed by value, so a run never observes changes to it.
type Config struct {
	Root                string   `yaml:"root" toml:"root"`
	Exclude             []string `yaml:"exclude" toml:"exclude"`
	PrintOnly           bool     `yaml:"print_only" toml:"print_only"`
	Force               bool     `yaml:"force" toml:"force"`
	TagsOnly            bool     `yaml:"tags_only" toml:"tags_only"`
	RenameOnly          bool     `yaml:"rename_only" toml:"rename_only"`
	Sort                bool     `yaml:"sort" toml:"sort"`
	Verbose             bool     `yaml:"verbose" toml:"verbose"`
	Debug               bool     `yaml:"debug" toml:"debug"`
	Jobs                int      `yaml:"jobs" toml:"jobs"`
	FindDuplicates      bool     `yaml:"find_duplicates" toml:"find_duplicates"`
	SimilarityThreshold float64  `yaml:"similarity_threshold" toml:"similarity_threshold"`
	AcronymMaxLength    int      `yaml:"acronym_max_length" toml:"acronym_max_length"`
	ConvertFailed       bool     `yaml:"convert_failed" toml:"convert_failed"`
	LogFailures         bool     `yaml:"log_failures" toml:"log_failures"`
	FailureLogPath      string   `yaml:"failure_log" toml:"failure_log"`
	TrashDir            string   `yaml:"trash_dir" toml:"trash_dir"`
	TagBackend          string   `yaml:"tag_backend" toml:"tag_backend"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Root:             ".",
		Exclude:          []string{},
		Jobs:             runtime.NumCPU(),
		FindDuplicates:   true,
		AcronymMaxLength: 4,
		TagBackend:       "auto",
	}
}

// LoadConfigFile loads configuration from a YAML or TOML file, picked by
// extension. If path is empty, searches standard locations. Returns defaults
// if no file found.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.Root = ExpandHome(cfg.Root)
	cfg.TrashDir = ExpandHome(cfg.TrashDir)
	cfg.FailureLogPath = ExpandHome(cfg.FailureLogPath)

	return cfg, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./trackrename.yaml",
		"./trackrename.yml",
		"./trackrename.toml",
		filepath.Join(home, ".config", "trackrename", "config.yaml"),
		filepath.Join(home, ".config", "trackrename", "config.toml"),
		filepath.Join(home, ".config", "track-rename.toml"),
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SaveConfigFile saves the configuration, as TOML when path ends in .toml
// and YAML otherwise.
func SaveConfigFile(cfg Config, path string) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "trackrename", "config.yaml")
}

// GetDefaultLogPath returns the default log directory path
func GetDefaultLogPath() string {
	return filepath.Join(homeDir(), ".local", "share", "trackrename", "logs")
}

// FailureLog returns the unreadable-files log path for this run.
func (c *Config) FailureLog() string {
	if c.FailureLogPath != "" {
		return c.FailureLogPath
	}
	return filepath.Join(c.Root, "trackrename-failed.txt")
}

// Excluded returns the exclusion list as a set.
func (c *Config) Excluded() map[string]bool {
	set := make(map[string]bool, len(c.Exclude))
	for _, name := range c.Exclude {
		if name = strings.TrimSpace(name); name != "" {
			set[name] = true
		}
	}
	return set
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root directory cannot be empty")
	}
	info, err := os.Stat(c.Root)
	if err != nil {
		return fmt.Errorf("root directory does not exist: %s", c.Root)
	}
	if !info.IsDir() {
		return fmt.Errorf("root is not a directory: %s", c.Root)
	}

	if c.TagsOnly && c.RenameOnly {
		return fmt.Errorf("tags_only and rename_only cannot both be set")
	}
	if c.PrintOnly && c.Force {
		return fmt.Errorf("print_only and force cannot both be set")
	}

	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0.0 and 1.0, got %.2f", c.SimilarityThreshold)
	}

	if c.AcronymMaxLength < 0 {
		return fmt.Errorf("acronym_max_length cannot be negative, got %d", c.AcronymMaxLength)
	}

	switch c.TagBackend {
	case "auto", "taglib":
	default:
		return fmt.Errorf("unknown tag_backend %q, valid backends: auto, taglib", c.TagBackend)
	}

	return nil
}
