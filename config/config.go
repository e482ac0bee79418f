// Package config loads the settings of the rule engine and of its replay
// server from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	model "github.com/blndgs/oprules"
	"github.com/blndgs/oprules/entity"
	"github.com/blndgs/oprules/validation"
)

type Config struct {
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	Stake     StakeConfig     `yaml:"stake" mapstructure:"stake"`
	Validator ValidatorConfig `yaml:"validator" mapstructure:"validator"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// RulesConfig names the chain contracts the rules refer to. Empty lists fall
// back to the defaults of the v0.6 EntryPoint.
type RulesConfig struct {
	EntryPoint          string   `yaml:"entryPoint" mapstructure:"entryPoint" default:"0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"`
	SenderCreator       string   `yaml:"senderCreator" mapstructure:"senderCreator" default:"0x7fc98430eAEdbb6070B35B39D798725049088348"`
	Precompiles         []string `yaml:"precompiles" mapstructure:"precompiles"`
	EntryPointSelectors []string `yaml:"entryPointSelectors" mapstructure:"entryPointSelectors"`
}

// StakeConfig holds the minimum stake of a staked entity. MinStake is a wei
// amount, decimal or 0x-prefixed.
type StakeConfig struct {
	MinStake           string `yaml:"minStake" mapstructure:"minStake" default:"1000000000000000000"`
	MinUnstakeDelaySec uint32 `yaml:"minUnstakeDelaySec" mapstructure:"minUnstakeDelaySec" default:"86400"`
}

type ValidatorConfig struct {
	// Workers bounds concurrent passes of a batch. Zero means GOMAXPROCS.
	Workers        int `yaml:"workers" mapstructure:"workers"`
	StakeCacheSize int `yaml:"stakeCacheSize" mapstructure:"stakeCacheSize" default:"256"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" default:":8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" mapstructure:"readTimeout" default:"10s"`
	WriteTimeout time.Duration `yaml:"writeTimeout" mapstructure:"writeTimeout" default:"30s"`
	// MaxBodyBytes caps the size of a replay request.
	MaxBodyBytes int64 `yaml:"maxBodyBytes" mapstructure:"maxBodyBytes" default:"16777216"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level" default:"info"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults. Unknown keys are an error.
func Parse(data []byte) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every field converts.
func (c *Config) Validate() error {
	if _, err := c.ValidationRules(); err != nil {
		return err
	}
	if _, err := c.StakePolicy(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Validator.Workers < 0 {
		return errors.New("validator.workers cannot be negative")
	}
	if c.Validator.StakeCacheSize <= 0 {
		return errors.New("validator.stakeCacheSize must be positive")
	}
	return nil
}

// ValidationRules converts the rules section to validation.Rules.
func (c *Config) ValidationRules() (validation.Rules, error) {
	rules := validation.DefaultRules()

	entryPoint, err := parseAddress("rules.entryPoint", c.Rules.EntryPoint)
	if err != nil {
		return rules, err
	}
	if entryPoint == (common.Address{}) {
		return rules, errors.New("rules.entryPoint cannot be the zero address")
	}
	rules.EntryPoint = entryPoint

	// The zero address disables the SenderCreator phase.
	if rules.SenderCreator, err = parseAddress("rules.senderCreator", c.Rules.SenderCreator); err != nil {
		return rules, err
	}

	if len(c.Rules.Precompiles) > 0 {
		rules.Precompiles = make([]common.Address, 0, len(c.Rules.Precompiles))
		for _, s := range c.Rules.Precompiles {
			addr, err := parseAddress("rules.precompiles", s)
			if err != nil {
				return rules, err
			}
			rules.Precompiles = append(rules.Precompiles, addr)
		}
	}

	if len(c.Rules.EntryPointSelectors) > 0 {
		rules.EntryPointSelectors = make([][4]byte, 0, len(c.Rules.EntryPointSelectors))
		for _, s := range c.Rules.EntryPointSelectors {
			b, err := hexutil.Decode(strings.TrimSpace(s))
			if err != nil || len(b) != 4 {
				return rules, fmt.Errorf("rules.entryPointSelectors: invalid selector %q", s)
			}
			rules.EntryPointSelectors = append(rules.EntryPointSelectors, [4]byte(b))
		}
	}
	return rules, nil
}

// StakePolicy converts the stake section to entity.StakePolicy.
func (c *Config) StakePolicy() (entity.StakePolicy, error) {
	minStake, err := model.ParseAmount(c.Stake.MinStake)
	if err != nil {
		return entity.StakePolicy{}, fmt.Errorf("stake.minStake: %w", err)
	}
	return entity.StakePolicy{MinStake: minStake, MinUnstakeDelaySec: c.Stake.MinUnstakeDelaySec}, nil
}

// ValidatorOptions returns the options of validation.NewValidator.
func (c *Config) ValidatorOptions() []validation.Option {
	return []validation.Option{
		validation.WithWorkers(c.Validator.Workers),
		validation.WithStakeCacheSize(c.Validator.StakeCacheSize),
	}
}

func (c *Config) LogLevel() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func parseAddress(field, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}
