package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spigell/crs-roadmap/internal/cache"
	"github.com/spigell/crs-roadmap/internal/crs"
	"github.com/spigell/crs-roadmap/internal/logger"
	"github.com/spigell/crs-roadmap/internal/pipeline"
)

const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the roadmap pipeline on a questionnaire",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("file", "f", "", "read the questionnaire from a file")
	runCmd.Flags().StringP("text", "t", "", "questionnaire text")
	runCmd.Flags().StringP("output", "o", OutputText, "output format: text, json or yaml")
	runCmd.Flags().String("score-mode", "", "narrative or deterministic (overrides pipeline.score-mode)")
	runCmd.Flags().Bool("no-cache", false, "do not use the redis run cache")

	viper.BindPFlag("pipeline.score-mode", runCmd.Flags().Lookup("score-mode"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the crs-roadmap", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	questionnaire, err := readQuestionnaire(cmd, os.Stdin)
	if err != nil {
		logger.Fatal("reading the questionnaire", zap.Error(err))
	}

	runner, err := newRunner(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the pipeline", zap.Error(err))
	}

	if noCache, _ := cmd.Flags().GetBool("no-cache"); !noCache && config.Cache.enabled() {
		runCache := cache.New(cache.NewRedisClient(*config.Cache.Redis), config.Cache.ttl(), logger)
		defer runCache.Close()

		if err := runCache.Ping(ctx); err != nil {
			logger.Warn("skipping the run cache", zap.Error(err))
		} else {
			runner = cache.NewCachedRunner(runner, runCache, config.Pipeline.ScoreMode, logger)
		}
	}

	rec, err := runner.Run(ctx, questionnaire)
	if err != nil {
		logger.Fatal("pipeline run failed", zap.Error(err))
	}

	format, _ := cmd.Flags().GetString("output")
	if err := writeRecord(os.Stdout, rec, format); err != nil {
		logger.Fatal("writing the result", zap.Error(err))
	}
}

// newRunner wires the generator, the retrieval index and the scoring engine
// into a pipeline.
func newRunner(ctx context.Context, config *Config, logger *zap.Logger) (cache.Runner, error) {
	client, err := newGeminiClient(ctx, config.AI)
	if err != nil {
		return nil, err
	}

	generator, err := newGenerator(client, config.AI, logger)
	if err != nil {
		return nil, fmt.Errorf("building text generator: %w", err)
	}

	index, err := buildIndex(ctx, client, config, logger)
	if err != nil {
		return nil, fmt.Errorf("building retrieval index: %w", err)
	}
	logger.Info("retrieval index ready", zap.Int("chunks", index.Len()))

	stages, err := pipeline.Stages(pipeline.Deps{
		Generator: generator,
		Index:     index,
		Engine:    crs.NewEngine(crs.Options{Strict: config.Scoring.Strict}),
		Logger:    logger,
	}, pipeline.Settings{
		ScoreMode:    config.Pipeline.ScoreMode,
		TopK:         config.Pipeline.TopK,
		Temperatures: config.Pipeline.Temperatures,
	})
	if err != nil {
		return nil, err
	}

	return pipeline.New(stages, logger), nil
}

func readQuestionnaire(cmd *cobra.Command, stdin io.Reader) (string, error) {
	text, _ := cmd.Flags().GetString("text")
	file, _ := cmd.Flags().GetString("file")

	switch {
	case text != "" && file != "":
		return "", fmt.Errorf("--text and --file are mutually exclusive")
	case text != "":
		return text, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read questionnaire file: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read questionnaire from stdin: %w", err)
		}
		return string(data), nil
	}
}

func writeRecord(w io.Writer, rec *pipeline.Record, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", OutputText:
		_, err := fmt.Fprintf(w, "Job roles:\n%s\n\nNOC codes:\n%s\n\nCRS score:\n%s\n\nRoadmap:\n%s\n",
			rec.JobRoles, strings.Join(rec.NOCCodes, "\n\n"), rec.CRSScore, rec.Roadmap)
		return err
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(rec)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
