package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources        Sources        `yaml:"sources"`
	LLM            LLM            `yaml:"llm"`
	Classification Classification `yaml:"classification"`
	Preprocess     Preprocess     `yaml:"preprocess"`
	Validation     Validation     `yaml:"validation"`
	Insights       Insights       `yaml:"insights"`
	Output         Output         `yaml:"output"`
	Server         Server         `yaml:"server"`
	Logging        Logging        `yaml:"logging"`
}

type Sources struct {
	Feeds       []Feed   `yaml:"feeds"`
	Subreddits  []string `yaml:"subreddits"`
	RedditURL   string   `yaml:"reddit_url"`
	UserAgent   string   `yaml:"user_agent"`
	DaysBack    int      `yaml:"days_back"`
	FetchBodies bool     `yaml:"fetch_bodies"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type LLM struct {
	Provider     string  `yaml:"provider"`
	Model        string  `yaml:"model"`
	OllamaURL    string  `yaml:"ollama_url"`
	OpenAIModel  string  `yaml:"openai_model"`
	OpenAIKeyEnv string  `yaml:"openai_api_key_env"`
	GeminiModel  string  `yaml:"gemini_model"`
	GeminiKeyEnv string  `yaml:"gemini_api_key_env"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
}

type Classification struct {
	BatchSize       int           `yaml:"batch_size"`
	VerifyBatchSize int           `yaml:"verify_batch_size"`
	Workers         int           `yaml:"workers"`
	BatchTimeout    time.Duration `yaml:"batch_timeout"`
	Schema          string        `yaml:"schema"`
	Verify          bool          `yaml:"verify"`
	Categories      []string      `yaml:"categories"`
}

type Preprocess struct {
	Profile          string   `yaml:"profile"`
	DedupeColumns    []string `yaml:"dedupe_columns"`
	CriticalColumns  []string `yaml:"critical_columns"`
	JoinColumns      []string `yaml:"join_columns"`
	TextColumn       string   `yaml:"text_column"`
	NormalizeColumns []string `yaml:"normalize_columns"`
	ExtraStopwords   []string `yaml:"extra_stopwords"`
	Stem             bool     `yaml:"stem"`
}

// Validation bounds are inclusive; MaxTextLength 0 means no upper bound.
type Validation struct {
	MinTextLength int    `yaml:"min_text_length"`
	MaxTextLength int    `yaml:"max_text_length"`
	URLPattern    string `yaml:"url_pattern"`
}

type Insights struct {
	Importance      string                `yaml:"importance"`
	ForecastPeriods int                   `yaml:"forecast_periods"`
	AnomalyZ        float64               `yaml:"anomaly_z"`
	Clusters        int                   `yaml:"clusters"`
	ClusterMethod   string                `yaml:"cluster_method"`
	Discrepancy     DiscrepancyThresholds `yaml:"discrepancy"`
	Summarize       bool                  `yaml:"summarize"`
	Aspects         bool                  `yaml:"aspects"`
	Polls           bool                  `yaml:"polls"`
}

type DiscrepancyThresholds struct {
	Low  float64 `yaml:"low"`
	Med  float64 `yaml:"med"`
	High float64 `yaml:"high"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for complaintradar.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "complaintradar")
}

// DataDir returns the XDG data directory for complaintradar.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "complaintradar")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/complaintradar/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'complaintradar init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			RedditURL: "https://www.reddit.com",
			UserAgent: "complaintradar/0.1",
			DaysBack:  7,
		},
		LLM: LLM{
			Provider:     "ollama",
			Model:        "qwen2.5:7b",
			OllamaURL:    "http://localhost:11434",
			OpenAIModel:  "gpt-4o-mini",
			OpenAIKeyEnv: "OPENAI_API_KEY",
			GeminiModel:  "gemini-2.0-flash",
			GeminiKeyEnv: "GEMINI_API_KEY",
			MaxTokens:    2048,
		},
		Classification: Classification{
			BatchSize:       20,
			VerifyBatchSize: 10,
			Workers:         4,
			BatchTimeout:    90 * time.Second,
			Schema:          "rich",
			Verify:          true,
		},
		Preprocess: Preprocess{
			Profile:         "general",
			DedupeColumns:   []string{"title", "body"},
			CriticalColumns: []string{"title"},
			JoinColumns:     []string{"title", "body"},
			TextColumn:      "text",
		},
		Validation: Validation{
			MinTextLength: 3,
			MaxTextLength: 10000,
			URLPattern:    `^https?://`,
		},
		Insights: Insights{
			Importance:      "consumer",
			ForecastPeriods: 7,
			AnomalyZ:        2.0,
			Clusters:        3,
			ClusterMethod:   "kmeans",
			Discrepancy:     DiscrepancyThresholds{Low: 0.2, Med: 0.5, High: 0.8},
			Summarize:       true,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	cl := c.Classification
	if cl.BatchSize <= 0 || cl.VerifyBatchSize <= 0 || cl.Workers <= 0 {
		return fmt.Errorf("classification: batch_size, verify_batch_size and workers must be positive")
	}
	if cl.BatchTimeout < 0 {
		return fmt.Errorf("classification: batch_timeout must not be negative")
	}
	v := c.Validation
	if v.MinTextLength < 0 || v.MaxTextLength < 0 || (v.MaxTextLength > 0 && v.MaxTextLength < v.MinTextLength) {
		return fmt.Errorf("validation: text length bounds [%d, %d] are invalid", v.MinTextLength, v.MaxTextLength)
	}
	d := c.Insights.Discrepancy
	if !(d.Low <= d.Med && d.Med <= d.High) {
		return fmt.Errorf("insights: discrepancy thresholds must ascend, got %v/%v/%v", d.Low, d.Med, d.High)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite database location inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "complaintradar.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
