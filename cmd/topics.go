package cmd

import (
	"fmt"
	"strings"

	"github.com/abhisek/examprep/internal/catalog"
	"github.com/abhisek/examprep/internal/validate"
	"github.com/spf13/cobra"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Inspect and extend the topic catalog",
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog topics in insertion order",
	RunE: func(cmd *cobra.Command, args []string) error {
		syllabus, _ := cmd.Flags().GetString("syllabus")
		subject, _ := cmd.Flags().GetString("subject")
		asJSON, _ := cmd.Flags().GetBool("json")

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		topics, err := s.Topics.Find(s.ctx, catalog.Filter{SyllabusID: syllabus, Subject: subject})
		if err != nil {
			return fmt.Errorf("list topics: %w", err)
		}
		if asJSON {
			return printJSON(topics)
		}
		if len(topics) == 0 {
			fmt.Println("No topics found.")
			return nil
		}

		fmt.Printf("%-36s  %-32s  %-14s  %-8s  %s\n", "ID", "Name", "Subject", "Level", "Syllabus")
		fmt.Println(strings.Repeat("─", 110))
		for _, t := range topics {
			level := string(t.Difficulty)
			if level == "" {
				level = "-"
			}
			fmt.Printf("%-36s  %-32s  %-14s  %-8s  %s\n",
				t.ID, truncate(t.Name, 32), truncate(t.Subject, 14), level, t.SyllabusID)
		}
		return nil
	},
}

type topicAddInput struct {
	Name       string `json:"name" validate:"notblank"`
	Subject    string `json:"subject"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	SyllabusID string `json:"syllabus"`
}

var topicsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a topic to the catalog",
	Long: "Adds a topic to the catalog. Existing plans for the same syllabus pick it\n" +
		"up the next time they are shown.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := topicAddInput{Name: strings.TrimSpace(args[0])}
		in.Subject, _ = cmd.Flags().GetString("subject")
		in.Difficulty, _ = cmd.Flags().GetString("difficulty")
		in.SyllabusID, _ = cmd.Flags().GetString("syllabus")
		in.Difficulty = strings.ToLower(strings.TrimSpace(in.Difficulty))

		if err := validate.Struct(in); err != nil {
			return err
		}

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		t := &catalog.Topic{
			Name:       in.Name,
			Subject:    in.Subject,
			Difficulty: catalog.Difficulty(in.Difficulty),
			SyllabusID: in.SyllabusID,
		}
		if err := s.Topics.Insert(s.ctx, t); err != nil {
			return fmt.Errorf("add topic: %w", err)
		}
		fmt.Printf("Added topic %s (%s)\n", t.ID, t.Name)
		return nil
	},
}

func init() {
	topicsListCmd.Flags().String("syllabus", "", "Only topics of this syllabus")
	topicsListCmd.Flags().String("subject", "", "Only topics of this subject")
	topicsListCmd.Flags().Bool("json", false, "Print topics as JSON")

	topicsAddCmd.Flags().String("subject", "", "Subject the topic belongs to")
	topicsAddCmd.Flags().String("difficulty", "", "easy, medium or hard")
	topicsAddCmd.Flags().String("syllabus", "", "Syllabus id")

	topicsCmd.AddCommand(topicsListCmd)
	topicsCmd.AddCommand(topicsAddCmd)
}
