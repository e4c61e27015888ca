package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"receipt-agent/internal/dedupe"
	"receipt-agent/internal/llm"
	"receipt-agent/internal/models"
)

var (
	calibrateCategory string
	calibrateFromFile bool
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <text-a> <text-b>",
	Short: "Compare two receipt texts under the configured duplicate threshold",
	Long:  "Embeds both texts with the configured embedding model and prints the cosine similarity and the verdict. With --files the arguments are paths.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, ok := models.ParseCategory(calibrateCategory)
		if !ok {
			return eris.Errorf("unknown category %q", calibrateCategory)
		}
		texts := args
		if calibrateFromFile {
			texts = make([]string, len(args))
			for i, p := range args {
				b, err := os.ReadFile(p)
				if err != nil {
					return eris.Wrap(err, "calibrate: read text")
				}
				texts[i] = string(b)
			}
		}

		clients, err := llm.NewFromConfig(cfg.LLM, nil, log)
		if err != nil {
			return eris.Wrap(err, "calibrate: init embedder")
		}
		thresholds, err := dedupe.NewThresholds(cfg.Dedupe.Threshold, cfg.Dedupe.Categories)
		if err != nil {
			return eris.Wrap(err, "calibrate: thresholds")
		}

		a, err := clients.Embedder.Embed(cmd.Context(), texts[0])
		if err != nil {
			return eris.Wrap(err, "calibrate: embed first text")
		}
		b, err := clients.Embedder.Embed(cmd.Context(), texts[1])
		if err != nil {
			return eris.Wrap(err, "calibrate: embed second text")
		}

		threshold := thresholds.For(category)
		score, duplicate := dedupe.Compare(a, b, threshold)
		fmt.Fprintf(cmd.OutOrStdout(), "category:  %s\nmodel:     %s\nscore:     %.4f\nthreshold: %.4f\nduplicate: %t\n",
			category, cfg.LLM.EmbeddingModel, score, threshold, duplicate)
		return nil
	},
}

func init() {
	calibrateCmd.Flags().StringVar(&calibrateCategory, "category", string(models.CategoryFood), "receipt category whose threshold applies")
	calibrateCmd.Flags().BoolVar(&calibrateFromFile, "files", false, "treat arguments as file paths")
	rootCmd.AddCommand(calibrateCmd)
}
