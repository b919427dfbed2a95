package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/abhisek/examprep/internal/studyplan"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show and reconcile a learner's study plan",
}

var planShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the latest plan, appending any catalog topics it is missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		asJSON, _ := cmd.Flags().GetBool("json")

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		view, err := s.Reconciler.GetLatest(s.ctx, userID)
		if errors.Is(err, studyplan.ErrPlanNotFound) {
			fmt.Printf("No study plan for %s. Run `examprep ingest` first.\n", userID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load study plan: %w", err)
		}

		if asJSON {
			return printJSON(view)
		}
		printPlan(view)
		return nil
	},
}

var planSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the latest plan's entries from the whole catalog (discards progress)",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := s.Reconciler.Sync(s.ctx, userID)
		if err != nil {
			return fmt.Errorf("sync study plan: %w", err)
		}

		fmt.Printf("Topics in catalog:    %d\n", report.TopicsInCollection)
		fmt.Printf("Topics in study plan: %d\n", report.TopicsInStudyPlan)
		if report.Matched {
			fmt.Println("✓ plan matches catalog")
		} else {
			fmt.Println("✗ plan does not match catalog")
		}
		return nil
	},
}

var planFixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Replace the latest plan with a fresh one covering the whole catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		plan, err := s.Reconciler.Fix(s.ctx, userID)
		if err != nil {
			return fmt.Errorf("fix study plan: %w", err)
		}
		fmt.Printf("Created plan %s with %d topics over %d days\n",
			plan.ID, len(plan.Topics), plan.Schedule.TotalDays)
		return nil
	},
}

var planStatusCmd = &cobra.Command{
	Use:   "status <topic-id> <pending|completed>",
	Short: "Mark a topic in the latest plan as pending or completed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		status, err := studyplan.ParseStatus(args[1])
		if err != nil {
			return err
		}

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		plan, err := s.Reconciler.SetStatus(s.ctx, userID, args[0], status)
		var notFound *studyplan.TopicNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("topic %s is not in the plan or the catalog (plan topics: %s)",
				notFound.TopicID, strings.Join(notFound.AvailableIDs, ", "))
		}
		if err != nil {
			return fmt.Errorf("update topic status: %w", err)
		}

		done := 0
		for _, e := range plan.Topics {
			if e.Status == studyplan.StatusCompleted {
				done++
			}
		}
		fmt.Printf("%s → %s (%d/%d completed)\n", args[0], status, done, len(plan.Topics))
		return nil
	},
}

func printPlan(v *studyplan.PlanView) {
	fmt.Printf("Plan:      %s\n", v.ID)
	fmt.Printf("Syllabus:  %s\n", v.SyllabusID)
	fmt.Printf("Generated: %s\n", v.Metadata.GeneratedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Days:      %d\n", v.Schedule.TotalDays)
	fmt.Println()

	fmt.Printf("%-4s  %-36s  %-8s  %-8s  %s\n", "Day", "Topic", "Time", "Level", "Status")
	fmt.Println(strings.Repeat("─", 72))
	for _, e := range v.Entries {
		name := e.TopicID
		if e.Topic != nil {
			name = e.Topic.Name
		}
		mark := " "
		if e.Status == studyplan.StatusCompleted {
			mark = "✓"
		}
		fmt.Printf("%-4d  %-36s  %-8s  %-8s  %s\n",
			e.ScheduledDay, truncate(name, 36), e.AllocatedTime.Formatted, e.Difficulty, mark)
	}

	if len(v.StudyTips) > 0 {
		fmt.Println()
		fmt.Println("Study tips")
		fmt.Println(strings.Repeat("─", 72))
		for _, tip := range v.StudyTips {
			fmt.Printf("  • %s\n", tip)
		}
	}
	if v.RevisionSchedule.Description != "" {
		fmt.Println()
		fmt.Printf("Revision: %s\n", v.RevisionSchedule.Description)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, c := range []*cobra.Command{planShowCmd, planSyncCmd, planFixCmd, planStatusCmd} {
		userFlag(c)
		planCmd.AddCommand(c)
	}
	planShowCmd.Flags().Bool("json", false, "Print the plan as JSON")
}
