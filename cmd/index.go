package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/crs-roadmap/internal/logger"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed the reference document and warm the embedding cache",
	Run: func(_ *cobra.Command, _ []string) {
		index()
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().String("document", "", "reference document (overrides retrieval.document)")
	viper.BindPFlag("retrieval.document", indexCmd.Flags().Lookup("document"))
}

func index() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	client, err := newGeminiClient(ctx, config.AI)
	if err != nil {
		logger.Fatal("creating the gemini client", zap.Error(err))
	}

	idx, err := buildIndex(ctx, client, config, logger)
	if err != nil {
		logger.Fatal("building retrieval index", zap.Error(err))
	}

	logger.Info("retrieval index built",
		zap.String("document", config.Retrieval.Document),
		zap.String("cache_db", config.Retrieval.CacheDB),
		zap.Int("chunks", idx.Len()),
	)
}
