package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ragcore/internal/di"
	"ragcore/internal/service"
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Run one question through the engine and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		kbID, _ := cmd.Flags().GetString("kb")
		sessionID, _ := cmd.Flags().GetString("session")
		outputJSON, _ := cmd.Flags().GetBool("json")
		showTrace, _ := cmd.Flags().GetBool("trace")

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

		var onStage service.StageFunc
		if verbose {
			onStage = func(stage string) {
				fmt.Fprintf(os.Stderr, "... %s\n", stage)
			}
		}

		outcome, err := container.Query.Query(ctx, service.QueryRequest{
			KBID:      kbID,
			SessionID: sessionID,
			Question:  question,
		}, onStage)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}

		if outputJSON {
			data, err := json.MarshalIndent(outcome.Trace, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Println(outcome.Trace.Answer)

		if showTrace {
			trace := outcome.Trace
			fmt.Println()
			fmt.Printf("Intent: %s (confidence %.2f)\n", trace.Intent.Tag, trace.Intent.Confidence)
			fmt.Printf("Steps: %d, retries: %d, duration: %s\n", trace.Steps, trace.Retries, trace.Duration)
			for _, call := range trace.ToolCalls {
				status := "ok"
				if call.Failed {
					status = "failed"
				}
				fmt.Printf("  [%d] %s (%s, %dms)\n", call.Step, call.Name, status, call.DurationMS)
			}
			for _, note := range trace.Annotations {
				fmt.Printf("  note: %s\n", note)
			}
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().String("kb", "", "Knowledge base ID")
	queryCmd.Flags().String("session", "", "Chat session ID for server-side history")
	queryCmd.Flags().Bool("json", false, "Print the full execution trace as JSON")
	queryCmd.Flags().Bool("trace", false, "Print a trace summary after the answer")
	queryCmd.MarkFlagRequired("kb")
	rootCmd.AddCommand(queryCmd)
}
