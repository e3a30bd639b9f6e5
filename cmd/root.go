package cmd

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/crs-roadmap/internal/cache"
	"github.com/spigell/crs-roadmap/internal/pipeline"
	"github.com/spigell/crs-roadmap/internal/retrieval"
)

const (
	app = "crs-roadmap"
)

type Config struct {
	AI        *AIConfig        `mapstructure:"ai"`
	Pipeline  *PipelineConfig  `mapstructure:"pipeline"`
	Retrieval *RetrievalConfig `mapstructure:"retrieval"`
	Scoring   *ScoringConfig   `mapstructure:"scoring"`
	Cache     *CacheConfig     `mapstructure:"cache"`
	Server    *ServerConfig    `mapstructure:"server"`
}

type AIConfig struct {
	Provider     string           `mapstructure:"provider"`
	MaxLogLength int              `mapstructure:"max-log-length"`
	Gemini       *GeminiConfig    `mapstructure:"gemini"`
	Anthropic    *AnthropicConfig `mapstructure:"anthropic"`
}

type GeminiConfig struct {
	APIKey         string `mapstructure:"api-key" json:"-"`
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
	MaxRetries     int    `mapstructure:"max-retries"`
}

type AnthropicConfig struct {
	APIKey     string `mapstructure:"api-key" json:"-"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxTokens  int64  `mapstructure:"max-tokens"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type PipelineConfig struct {
	ScoreMode    string                `mapstructure:"score-mode"`
	TopK         int                   `mapstructure:"top-k"`
	Temperatures pipeline.Temperatures `mapstructure:"temperatures"`
}

type RetrievalConfig struct {
	Document       string  `mapstructure:"document"`
	ChunkSize      int     `mapstructure:"chunk-size"`
	CacheDB        string  `mapstructure:"cache-db"`
	EmbedBatchSize int     `mapstructure:"embed-batch-size"`
	EmbedRPS       float64 `mapstructure:"embed-rps"`
	EmbedWorkers   int     `mapstructure:"embed-workers"`
}

type ScoringConfig struct {
	Strict bool `mapstructure:"strict"`
}

type CacheConfig struct {
	Redis *cache.Config `mapstructure:"redis"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "crs-roadmap estimates a CRS score and drafts a Canadian immigration career roadmap from a questionnaire",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// A missing .env is fine: keys may come from the real environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	for key, env := range map[string]string{
		"ai.gemini.api-key-file":    "GEMINI_API_KEY_FILE",
		"ai.anthropic.api-key-file": "ANTHROPIC_API_KEY_FILE",
		"cache.redis.addr":          "REDIS_ADDR",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is crs-roadmap.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	temps := pipeline.DefaultTemperatures()

	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("pipeline.score-mode", pipeline.ScoreModeNarrative)
	viper.SetDefault("pipeline.top-k", pipeline.DefaultTopK)
	viper.SetDefault("pipeline.temperatures.roles", temps.Roles)
	viper.SetDefault("pipeline.temperatures.score", temps.Score)
	viper.SetDefault("pipeline.temperatures.roadmap", temps.Roadmap)
	viper.SetDefault("retrieval.document", "noc_codes.txt")
	viper.SetDefault("retrieval.chunk-size", retrieval.DefaultChunkSize)
	viper.SetDefault("retrieval.cache-db", ".crs-roadmap/embeddings.db")
	viper.SetDefault("cache.redis.ttl", cache.DefaultTTL)
	viper.SetDefault("server.addr", ":8080")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Every setting has a default, so a missing config file is not fatal.
	// A config file that exists but does not parse is.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.AI.Anthropic == nil {
		config.AI.Anthropic = &AnthropicConfig{}
	}
	if config.Pipeline == nil {
		config.Pipeline = &PipelineConfig{Temperatures: pipeline.DefaultTemperatures()}
	}
	if config.Retrieval == nil {
		config.Retrieval = &RetrievalConfig{}
	}
	if config.Scoring == nil {
		config.Scoring = &ScoringConfig{}
	}
	if config.Cache == nil {
		config.Cache = &CacheConfig{}
	}
	if config.Server == nil {
		config.Server = &ServerConfig{}
	}

	return config, nil
}

func (c *CacheConfig) enabled() bool {
	return c != nil && c.Redis != nil && c.Redis.Addr != ""
}

func (c *CacheConfig) ttl() time.Duration {
	if c == nil || c.Redis == nil {
		return 0
	}
	return c.Redis.TTL
}
