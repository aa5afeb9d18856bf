package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Limits applied by Normalize
const (
	MinRSSIThreshold = -120
	MaxRSSIThreshold = 0
	MinDebugMaxLines = 50
	MaxDebugMaxLines = 5000
	MaxCooldown      = 10 * time.Minute

	// detectionLogLines is the log capacity when debug output is off
	detectionLogLines = 100
)

// Supported driver names
const (
	DriverGoBLE  = "go-ble"
	DriverTinyGo = "tinygo"
)

// ScannerConfig is the snapshot a scan session runs with
type ScannerConfig struct {
	RSSIThreshold   int           `yaml:"rssi_threshold" default:"-75"`
	Debug           bool          `yaml:"debug_enabled" default:"false"`
	DebugAdvOnly    bool          `yaml:"debug_adv_only" default:"false"`
	DebugCompanyIDs CompanyIDSet  `yaml:"debug_company_ids"`
	DebugMaxLines   int           `yaml:"debug_max_lines" default:"200"`
	Cooldown        time.Duration `yaml:"cooldown" default:"10s"`
}

// Clone returns a deep copy
func (c ScannerConfig) Clone() ScannerConfig {
	c.DebugCompanyIDs = c.DebugCompanyIDs.Clone()
	return c
}

// Normalize clamps every field into its valid range
func (c *ScannerConfig) Normalize() {
	c.RSSIThreshold = clamp(c.RSSIThreshold, MinRSSIThreshold, MaxRSSIThreshold)
	c.DebugMaxLines = clamp(c.DebugMaxLines, MinDebugMaxLines, MaxDebugMaxLines)
	c.Cooldown = clamp(c.Cooldown, 0, MaxCooldown)
}

// LogCapacity is the activity log size for this configuration
func (c ScannerConfig) LogCapacity() int {
	if c.Debug {
		return max(MinDebugMaxLines, c.DebugMaxLines)
	}
	return detectionLogLines
}

// Config holds application configuration
type Config struct {
	LogLevel      logrus.Level      `yaml:"log_level"`
	Driver        string            `yaml:"driver" default:"go-ble"`
	Notifications bool              `yaml:"notifications" default:"true"`
	Logging       bool              `yaml:"logging" default:"true"`
	NotifyCommand string            `yaml:"notify_command"`
	Aliases       map[string]string `yaml:"aliases"`
	Scanner       ScannerConfig     `yaml:"scanner"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.LogLevel = logrus.InfoLevel
	return cfg
}

// LoadFile reads a YAML file over the defaults and normalizes the result
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Scanner.Normalize()
	return cfg, nil
}

// Validate rejects values that cannot be clamped into shape
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverGoBLE, DriverTinyGo:
		return nil
	default:
		return fmt.Errorf("invalid driver %q: must be %s or %s", c.Driver, DriverGoBLE, DriverTinyGo)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// CompanyIDSet is a set of 16-bit manufacturer identifiers
type CompanyIDSet map[uint16]struct{}

// NewCompanyIDSet builds a set from ids
func NewCompanyIDSet(ids ...uint16) CompanyIDSet {
	set := make(CompanyIDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports membership
func (s CompanyIDSet) Contains(id uint16) bool {
	_, ok := s[id]
	return ok
}

// Clone returns a copy; nil stays nil
func (s CompanyIDSet) Clone() CompanyIDSet {
	if s == nil {
		return nil
	}
	out := make(CompanyIDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the members in ascending order
func (s CompanyIDSet) Sorted() []uint16 {
	out := make([]uint16, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s CompanyIDSet) String() string {
	parts := make([]string, 0, len(s))
	for _, id := range s.Sorted() {
		parts = append(parts, fmt.Sprintf("0x%04X", id))
	}
	return strings.Join(parts, ",")
}

// UnmarshalYAML accepts either a comma separated string or a list of tokens
func (s *CompanyIDSet) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = ParseCompanyIDs(node.Value)
		return nil
	case yaml.SequenceNode:
		tokens := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: company id must be a scalar", item.Line)
			}
			tokens = append(tokens, item.Value)
		}
		*s = ParseCompanyIDs(strings.Join(tokens, ","))
		return nil
	default:
		return fmt.Errorf("line %d: company ids must be a string or a list", node.Line)
	}
}

// ParseCompanyIDs parses a comma separated list of identifiers.
// Accepted forms: "0x01AB" (hex), "427" (all digits, decimal), "01AB" (bare hex).
// Tokens that do not parse as a 16-bit value are skipped.
func ParseCompanyIDs(raw string) CompanyIDSet {
	set := CompanyIDSet{}
	for _, token := range strings.Split(raw, ",") {
		t := strings.ToLower(strings.TrimSpace(token))
		if t == "" {
			continue
		}

		var (
			v   uint64
			err error
		)
		switch {
		case strings.HasPrefix(t, "0x"):
			v, err = strconv.ParseUint(strings.TrimPrefix(t, "0x"), 16, 16)
		case isDigits(t):
			v, err = strconv.ParseUint(t, 10, 16)
		default:
			v, err = strconv.ParseUint(t, 16, 16)
		}
		if err != nil {
			continue
		}
		set[uint16(v)] = struct{}{}
	}
	return set
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func clamp[T int | time.Duration](v, lo, hi T) T {
	return min(max(v, lo), hi)
}
