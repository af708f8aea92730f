package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ragcore/internal/di"
	"ragcore/internal/domain"
	"ragcore/internal/evaluation"
)

var evalCmd = &cobra.Command{
	Use:   "eval <questions-file>",
	Short: "Run an evaluation question set against a knowledge base",
	Long: `Runs every question in the file through the full pipeline, scores each
answer with the LLM judges and prints the aggregate report. The file is
a JSON array of questions:

  [{"text": "...", "expectedTools": ["search_knowledge"]}]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kbID, _ := cmd.Flags().GetString("kb")
		outputJSON, _ := cmd.Flags().GetBool("json")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read question file: %w", err)
		}
		var questions []domain.EvalQuestion
		if err := json.Unmarshal(data, &questions); err != nil {
			return fmt.Errorf("parse question file: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		container, err := di.InitializeContainer(cfg)
		if err != nil {
			return fmt.Errorf("initialize container: %w", err)
		}
		defer container.Shutdown(context.Background())

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		run, err := container.Harness.Run(ctx, kbID, questions, func(ev evaluation.Event) {
			if ev.Kind != evaluation.EventProgress || ev.Result == nil {
				return
			}
			fmt.Fprintf(os.Stderr, "[%d/%d] %.1f  %s\n",
				ev.Completed, ev.Total, ev.Result.Average, ev.Result.Question)
		})
		if err != nil {
			return fmt.Errorf("evaluation failed: %w", err)
		}

		if outputJSON {
			out, err := json.MarshalIndent(run, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Printf("Run %s: %s\n", run.ID, run.Status)
		fmt.Printf("  Questions:    %d/%d\n", run.CompletedCount, run.TotalQuestions)
		fmt.Printf("  Retrieval:    %.2f\n", run.AvgRetrieval)
		fmt.Printf("  Faithfulness: %.2f\n", run.AvgFaithfulness)
		fmt.Printf("  Quality:      %.2f\n", run.AvgQuality)
		fmt.Printf("  Tool:         %.2f\n", run.AvgTool)
		fmt.Printf("  Overall:      %.2f\n", run.AvgOverall)
		return nil
	},
}

func init() {
	evalCmd.Flags().String("kb", "", "Knowledge base ID")
	evalCmd.Flags().Bool("json", false, "Print the completed run as JSON")
	evalCmd.MarkFlagRequired("kb")
	rootCmd.AddCommand(evalCmd)
}
