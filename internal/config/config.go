package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the diskwipe configuration.
type Config struct {
	Security  SecurityConfig  `yaml:"security"`
	Wipe      WipeConfig      `yaml:"wipe"`
	Clone     CloneConfig     `yaml:"clone"`
	Logging   LoggingConfig   `yaml:"logging"`
	Reporting ReportingConfig `yaml:"reporting"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type SecurityConfig struct {
	RequireConfirmation bool  `yaml:"require_confirmation"`
	ExcludedDrives      []int `yaml:"excluded_drives"`
}

type WipeConfig struct {
	Method        string  `yaml:"method"`
	RandomPasses  uint    `yaml:"random_passes"`
	Filesystem    string  `yaml:"filesystem"`
	PollInterval  string  `yaml:"poll_interval"`
	SettleDelay   string  `yaml:"settle_delay"`
	Stabilization string  `yaml:"stabilization"`
	RampStep      float64 `yaml:"ramp_step"`
	RampCap       float64 `yaml:"ramp_cap"`
}

type CloneConfig struct {
	PollInterval string  `yaml:"poll_interval"`
	ChunkSize    int     `yaml:"chunk_size"`
	MaxSpeedMBps float64 `yaml:"max_speed_mbps"`
	RampStep     float64 `yaml:"ramp_step"`
	RampCap      float64 `yaml:"ramp_cap"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxFiles   int    `yaml:"max_files"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type ReportingConfig struct {
	CertificateDir string `yaml:"certificate_dir"`
	Operator       string `yaml:"operator"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the default configuration.
func Default() *Config {
	home := homeDir()

	return &Config{
		Security: SecurityConfig{
			RequireConfirmation: true,
			ExcludedDrives:      []int{},
		},
		Wipe: WipeConfig{
			Method:        "standard",
			RandomPasses:  3,
			Filesystem:    "exFAT",
			PollInterval:  "2s",
			SettleDelay:   "500ms",
			Stabilization: "5s",
			RampStep:      10,
			RampCap:       90,
		},
		Clone: CloneConfig{
			PollInterval: "3s",
			ChunkSize:    1024 * 1024, // 1MB
			MaxSpeedMBps: 0,           // unlimited
			RampStep:     2,
			RampCap:      10,
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			File:       filepath.Join(home, "DiskWipe", "logs", "diskwipe.log"),
			MaxSizeMB:  10,
			MaxFiles:   1,
			MaxAgeDays: 30,
		},
		Reporting: ReportingConfig{
			CertificateDir: filepath.Join(home, "DiskWipe", "certificates"),
			Operator:       currentOperator(),
		},
	}
}

// Load reads the configuration from path.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Fields missing from the file keep their defaults
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks cfg for invalid values.
func Validate(config *Config) error {
	validMethods := map[string]bool{
		"standard": true,
		"dod":      true,
		"gutmann":  true,
		"random":   true,
	}
	if !validMethods[config.Wipe.Method] {
		return fmt.Errorf("invalid wipe method: %s", config.Wipe.Method)
	}

	if config.Wipe.RandomPasses < 1 || config.Wipe.RandomPasses > 100 {
		return fmt.Errorf("random passes must be between 1 and 100, got %d", config.Wipe.RandomPasses)
	}

	validFilesystems := map[string]bool{
		"NTFS":  true,
		"exFAT": true,
		"FAT32": true,
		"ext4":  true,
	}
	if !validFilesystems[config.Wipe.Filesystem] {
		return fmt.Errorf("invalid filesystem: %s", config.Wipe.Filesystem)
	}

	durations := map[string]string{
		"wipe.poll_interval":  config.Wipe.PollInterval,
		"wipe.settle_delay":   config.Wipe.SettleDelay,
		"wipe.stabilization":  config.Wipe.Stabilization,
		"clone.poll_interval": config.Clone.PollInterval,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s format: %s", name, value)
		}
		if d < 0 {
			return fmt.Errorf("%s cannot be negative, got %s", name, value)
		}
	}
	if d, _ := time.ParseDuration(config.Wipe.PollInterval); d == 0 {
		return fmt.Errorf("wipe.poll_interval must be positive")
	}
	if d, _ := time.ParseDuration(config.Clone.PollInterval); d == 0 {
		return fmt.Errorf("clone.poll_interval must be positive")
	}

	// Synthetic progress ramp
	for name, ramp := range map[string][2]float64{
		"wipe":  {config.Wipe.RampStep, config.Wipe.RampCap},
		"clone": {config.Clone.RampStep, config.Clone.RampCap},
	} {
		if ramp[0] <= 0 || ramp[0] > 100 {
			return fmt.Errorf("%s ramp step must be in (0, 100], got %v", name, ramp[0])
		}
		if ramp[1] <= 0 || ramp[1] >= 100 {
			return fmt.Errorf("%s ramp cap must be in (0, 100), got %v", name, ramp[1])
		}
	}

	if config.Clone.ChunkSize < 4096 || config.Clone.ChunkSize > 64*1024*1024 {
		return fmt.Errorf("clone chunk size must be between 4KB and 64MB, got %d", config.Clone.ChunkSize)
	}
	if config.Clone.MaxSpeedMBps < 0 {
		return fmt.Errorf("max speed cannot be negative, got %f", config.Clone.MaxSpeedMBps)
	}

	for _, idx := range config.Security.ExcludedDrives {
		if idx < 0 {
			return fmt.Errorf("invalid excluded drive index: %d", idx)
		}
	}

	validLevels := map[string]bool{
		"DEBUG": true,
		"INFO":  true,
		"WARN":  true,
		"ERROR": true,
	}
	if !validLevels[config.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	if config.Logging.MaxSizeMB <= 0 || config.Logging.MaxSizeMB > 1000 {
		return fmt.Errorf("log max size must be between 1MB and 1000MB, got %d", config.Logging.MaxSizeMB)
	}

	if config.Logging.MaxFiles < 0 || config.Logging.MaxFiles > 50 {
		return fmt.Errorf("log max files must be between 0 and 50, got %d", config.Logging.MaxFiles)
	}

	return nil
}

// Save writes cfg to path.
func Save(config *Config, path string) error {
	if err := Validate(config); err != nil {
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// WipePollInterval returns the wipe pass poll interval.
func (config *Config) WipePollInterval() time.Duration {
	return parseDurationOr(config.Wipe.PollInterval, 2*time.Second)
}

// SettleDelay returns the pause between passes.
func (config *Config) SettleDelay() time.Duration {
	return parseDurationOr(config.Wipe.SettleDelay, 500*time.Millisecond)
}

// Stabilization returns the delay before the first throughput estimate.
func (config *Config) Stabilization() time.Duration {
	return parseDurationOr(config.Wipe.Stabilization, 5*time.Second)
}

// ClonePollInterval returns the clone poll interval.
func (config *Config) ClonePollInterval() time.Duration {
	return parseDurationOr(config.Clone.PollInterval, 3*time.Second)
}

// IsExcluded reports whether the configuration excludes disk index.
func (config *Config) IsExcluded(index int) bool {
	for _, excluded := range config.Security.ExcludedDrives {
		if excluded == index {
			return true
		}
	}
	return false
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." // Fallback
	}
	return home
}

func currentOperator() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}
