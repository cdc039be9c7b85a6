package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models rageraps.yml.
type Config struct {
	Battle struct {
		Rounds                 int `yaml:"rounds"`
		ProducerTimeoutSeconds int `yaml:"producer_timeout_seconds"`
		JudgeTimeoutSeconds    int `yaml:"judge_timeout_seconds"`
	} `yaml:"battle"`
	LLM struct {
		Model            string  `yaml:"model"`
		JudgeModel       string  `yaml:"judge_model"`
		Temperature      float64 `yaml:"temperature"`
		JudgeTemperature float64 `yaml:"judge_temperature"`
		APIKeyEnv        string  `yaml:"api_key_env"`
	} `yaml:"llm"`
	Knowledge struct {
		LyricResults int `yaml:"lyric_results"`
		BioResults   int `yaml:"bio_results"`
	} `yaml:"knowledge"`
	Styles map[string]StyleInfo `yaml:"styles"`
}

type StyleInfo struct {
	Description string `yaml:"description"`
}

// ProducerTimeout returns the per-producer generation deadline.
func (c *Config) ProducerTimeout() time.Duration {
	return time.Duration(c.Battle.ProducerTimeoutSeconds) * time.Second
}

// JudgeTimeout returns the evaluation deadline.
func (c *Config) JudgeTimeout() time.Duration {
	return time.Duration(c.Battle.JudgeTimeoutSeconds) * time.Second
}

// APIKey reads the LLM API key from the configured environment variable.
func (c *Config) APIKey() string {
	env := c.LLM.APIKeyEnv
	if env == "" {
		env = "GEMINI_API_KEY"
	}
	return os.Getenv(env)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Battle.Rounds < 1 {
		return fmt.Errorf("config.battle.rounds must be >= 1")
	}
	if c.Battle.ProducerTimeoutSeconds <= 0 {
		return fmt.Errorf("config.battle.producer_timeout_seconds must be positive")
	}
	if c.Battle.JudgeTimeoutSeconds <= 0 {
		return fmt.Errorf("config.battle.judge_timeout_seconds must be positive")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("config.llm.model is required")
	}
	if c.Knowledge.LyricResults < 0 || c.Knowledge.BioResults < 0 {
		return fmt.Errorf("config.knowledge result counts must not be negative")
	}
	for name, info := range c.Styles {
		if name == "" {
			return fmt.Errorf("config.styles contains empty style name")
		}
		_ = info
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "rageraps.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run rb config init", Path(workspace))
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML for rb config init.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `battle:
  rounds: 3
  producer_timeout_seconds: 90
  judge_timeout_seconds: 60

llm:
  model: gemini-2.0-flash
  judge_model: gemini-2.0-flash
  temperature: 0.9
  judge_temperature: 0.4
  api_key_env: GEMINI_API_KEY

knowledge:
  lyric_results: 5
  bio_results: 3

styles:
  old-school:
    description: "Boom bap era delivery, tight multisyllabic rhyme schemes"
  trap:
    description: "Triplet flows, heavy ad-libs, 808-driven cadence"
  conscious:
    description: "Socially aware storytelling, dense internal rhyme"
  gangsta:
    description: "Hard-edged street narratives, direct confrontational bars"
  boom-bap:
    description: "Classic sample-based rhythm, head-nod pocket flows"
`
