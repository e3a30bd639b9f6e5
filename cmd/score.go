package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spigell/crs-roadmap/internal/crs"
	"github.com/spigell/crs-roadmap/internal/intake"
	"github.com/spigell/crs-roadmap/internal/logger"
	"github.com/spigell/crs-roadmap/internal/metrics"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Calculate a CRS score from an applicant profile",
	Run: func(cmd *cobra.Command, _ []string) {
		score(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringP("applicant", "a", "", "yaml or json file with the applicant profile. Prompts interactively when unset.")
	scoreCmd.Flags().Bool("strict", false, "fail on values outside of the point table instead of scoring them as zero")

	viper.BindPFlag("scoring.strict", scoreCmd.Flags().Lookup("strict"))
}

func score(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	var applicant *crs.Applicant
	if path, _ := cmd.Flags().GetString("applicant"); path != "" {
		applicant, err = loadApplicant(path)
	} else {
		fmt.Println("Welcome to the CRS Calculator")
		applicant, err = intake.Collect(intake.Terminal{})
	}
	if err != nil {
		logger.Fatal("reading the applicant", zap.Error(err))
	}

	engine := crs.NewEngine(crs.Options{Strict: viper.GetBool("scoring.strict")})
	breakdown, err := engine.Score(*applicant)
	if err != nil {
		logger.Fatal("scoring the applicant", zap.Error(err))
	}
	metrics.ScoresComputed.WithLabelValues("cli").Inc()

	renderBreakdown(os.Stdout, breakdown)
}

// loadApplicant reads a yaml (or json, which is valid yaml) profile. Values
// are decoded leniently, like a model's extraction answer.
func loadApplicant(path string) (*crs.Applicant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read applicant file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse applicant file: %w", err)
	}

	return crs.DecodeApplicant(raw)
}

func renderBreakdown(w io.Writer, b crs.Breakdown) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Factor", "Input", "Points"})
	for _, f := range b.Factors {
		tw.AppendRow(table.Row{f.Factor, f.Input, f.Points})
	}
	tw.AppendFooter(table.Row{"", "Total", b.Total})
	tw.Render()
}
