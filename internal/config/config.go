// Package config loads the UPF configuration using viper.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/epcnet/upf/internal/log"
)

// Config is the top-level static configuration, mapping to the root of
// the YAML file.
type Config struct {
	Log     log.Config    `mapstructure:"log"`
	Capture CaptureConfig `mapstructure:"capture"`
	Router  RouterConfig  `mapstructure:"router"`
}

// CaptureConfig selects the live-capture interface and tuning.
type CaptureConfig struct {
	Interface    string `mapstructure:"interface"`
	SnapLen      int    `mapstructure:"snap_len"`
	Promiscuous  bool   `mapstructure:"promiscuous"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	KernelFilter bool   `mapstructure:"kernel_filter"`
}

// RouterConfig tunes the UPF router and its encapsulation sink.
type RouterConfig struct {
	UDPChecksum bool   `mapstructure:"udp_checksum"`
	RulesFile   string `mapstructure:"rules_file"`
}

// Load reads the configuration file at path. A missing path yields
// defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("capture.snap_len", 65600)
	v.SetDefault("capture.buffer_size_mb", 8)
	v.SetDefault("router.udp_checksum", true)
	v.SetEnvPrefix("UPF")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// rulesFile is the YAML shape of a matching-rules file: a list of
// textual rules under a single key.
type rulesFile struct {
	Rules []string `yaml:"rules"`
}

// LoadRules reads a rules file and returns the textual rules in list
// order.
func LoadRules(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file %s: %w", path, err)
	}
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}
	return rf.Rules, nil
}
