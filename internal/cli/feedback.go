package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mkravets/tectonic/internal/events"
	"github.com/mkravets/tectonic/internal/feedback"
	"github.com/mkravets/tectonic/internal/model"
)

var (
	feedbackLimit int
	feedbackFile  string
)

// feedbackCmd represents the feedback command
var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Manage downstream feedback events",
	Long: `Feedback events record downstream outcomes (pattern verifications,
source accuracy checks, solution outcomes, playbook executions, manual
corrections). 'feedback add' enqueues events from a JSON file;
'feedback process' folds pending events back into stored confidence,
exactly once per event, with a full audit trail.`,
}

var feedbackProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Apply all pending feedback events",
	RunE:  runFeedbackProcess,
}

var feedbackAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Enqueue feedback events from a JSON file",
	Long: `Read a JSON array of feedback events and enqueue them for processing.

Example file:
  [{"kind": "verification_result", "entity_type": "pattern",
    "entity_id": "<pattern-id>", "payload": {"verdict": "corroborated"}}]`,
	RunE: runFeedbackAdd,
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
	feedbackCmd.AddCommand(feedbackProcessCmd)
	feedbackCmd.AddCommand(feedbackAddCmd)

	feedbackProcessCmd.Flags().IntVar(&feedbackLimit, "limit", 0, "max events to process (0 = all)")
	feedbackProcessCmd.Flags().StringVar(&storePath, "store", "", "knowledge base directory (default: ~/.tectonic/kb)")
	feedbackAddCmd.Flags().StringVar(&feedbackFile, "file", "", "JSON file with an array of feedback events (required)")
	_ = feedbackAddCmd.MarkFlagRequired("file")
}

func runFeedbackProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	processor := feedback.NewProcessor(st, events.NewBus())
	summary, err := processor.ProcessPending(context.Background(), feedbackLimit)
	if err != nil {
		return fmt.Errorf("process feedback: %w", err)
	}

	fmt.Printf("Processed %d events (%d failed, %d already processed)\n",
		summary.Processed, summary.Failed, summary.Skipped)
	return nil
}

func runFeedbackAdd(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(feedbackFile)
	if err != nil {
		return fmt.Errorf("read events file: %w", err)
	}

	var incoming []model.FeedbackEvent
	if err := json.Unmarshal(data, &incoming); err != nil {
		return fmt.Errorf("parse events file: %w", err)
	}
	if len(incoming) == 0 {
		return fmt.Errorf("no events in %s", feedbackFile)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	for i, event := range incoming {
		if event.Kind == "" || event.EntityID == "" {
			return fmt.Errorf("event %d: kind and entity_id are required", i)
		}
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.CreatedAt.IsZero() {
			event.CreatedAt = time.Now().UTC()
		}
		event.Processed = false
		if err := st.EnqueueFeedback(event); err != nil {
			return fmt.Errorf("enqueue event %d: %w", i, err)
		}
	}

	fmt.Printf("Enqueued %d feedback events\n", len(incoming))
	return nil
}
