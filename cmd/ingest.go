package cmd

import (
	"fmt"
	"strings"

	"github.com/abhisek/examprep/internal/ingest"
	"github.com/abhisek/examprep/internal/synthesis"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <parsed.json>",
	Short: "Ingest a parsed syllabus and generate a study plan",
	Long: "Reads a parsed syllabus document (class, subject, topics and embedded\n" +
		"knowledge items), stores its topics, indexes the knowledge vectors and\n" +
		"creates a study plan for the learner.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		hours, _ := cmd.Flags().GetFloat64("hours")
		days, _ := cmd.Flags().GetInt("days")
		difficulty, _ := cmd.Flags().GetString("difficulty")
		retry, _ := cmd.Flags().GetBool("retry")
		asJSON, _ := cmd.Flags().GetBool("json")

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		doc, err := ingest.JSONFileParser{}.Parse(s.ctx, args[0])
		if err != nil {
			return err
		}

		pipeline, err := s.Pipeline(s.ctx)
		if err != nil {
			return err
		}

		opts := synthesis.Options{
			StudyHoursPerDay: hours,
			TotalDays:        days,
			Difficulty:       difficulty,
		}
		rep, err := pipeline.Ingest(s.ctx, userID, doc, opts)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", args[0], err)
		}
		if retry && rep.FailedBatches > 0 {
			if err := pipeline.RetryFailed(s.ctx, rep); err != nil {
				s.Log.Warn("vector batches still failing after retry", "error", err)
			}
		}

		if asJSON {
			return printJSON(rep)
		}
		printReport(rep)
		return nil
	},
}

func printReport(rep *ingest.Report) {
	sep := strings.Repeat("─", 48)

	fmt.Printf("User:       %s\n", rep.UserID)
	fmt.Printf("Syllabus:   %s\n", rep.SyllabusID)
	fmt.Println(sep)
	fmt.Printf("%-28s  %d created, %d reused\n", "Topics", rep.TopicsCreated, rep.TopicsReused)
	fmt.Printf("%-28s  %d\n", "Vectors upserted", len(rep.VectorsUpserted))
	if rep.FailedBatches > 0 {
		fmt.Printf("%-28s  %d (%d vectors)\n", "Failed batches", rep.FailedBatches, len(rep.VectorsMissing))
	}
	if rep.SkippedItems > 0 {
		fmt.Printf("%-28s  %d\n", "Items without embedding", rep.SkippedItems)
	}

	status := "✓"
	if !rep.SynthesisSuccess {
		status = "✗ " + rep.SynthesisError
	}
	fmt.Printf("%-28s  %s\n", "Plan synthesis", status)
	fmt.Printf("%-28s  %d\n", "Difficulty backfilled", rep.DifficultyBackfilled)
	fmt.Println(sep)
	fmt.Printf("Plan %s with %d topics\n", rep.PlanID, rep.PlanTopics)
}

func init() {
	userFlag(ingestCmd)
	ingestCmd.Flags().Float64("hours", synthesis.DefaultOptions().StudyHoursPerDay, "Study hours per day")
	ingestCmd.Flags().Int("days", synthesis.DefaultOptions().TotalDays, "Total days in the plan")
	ingestCmd.Flags().String("difficulty", "", "Preferred difficulty (easy, medium, hard, mixed)")
	ingestCmd.Flags().Bool("retry", true, "Retry failed vector batches once")
	ingestCmd.Flags().Bool("json", false, "Print the report as JSON")
}
