package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/abhisek/examprep/internal/llm"
	"github.com/abhisek/examprep/internal/store"
	"github.com/spf13/cobra"
)

var errNoEventLog = errors.New("LLM events are only recorded with the sqlite store backend")

const timeLayout = "2006-01-02 15:04:05"

// openEvents opens a session whose store keeps the LLM event log.
func openEvents(cmd *cobra.Command) (*session, store.EventRepo, error) {
	s, err := openSession(cmd)
	if err != nil {
		return nil, nil, err
	}
	if s.Events == nil {
		s.Close()
		return nil, nil, errNoEventLog
	}
	return s, s.Events, nil
}

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect recorded study plan generation calls",
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent LLM calls, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := store.QueryOpts{}
		opts.Limit, _ = cmd.Flags().GetInt("limit")
		opts.Purpose, _ = cmd.Flags().GetString("purpose")
		if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
			opts.From = time.Now().Add(-since)
		}
		failedOnly, _ := cmd.Flags().GetBool("failed")
		asJSON, _ := cmd.Flags().GetBool("json")

		s, repo, err := openEvents(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		events, err := repo.QueryLLMEvents(s.ctx, opts)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		if failedOnly {
			kept := events[:0]
			for _, e := range events {
				if !e.Success {
					kept = append(kept, e)
				}
			}
			events = kept
		}

		if asJSON {
			return printJSON(events)
		}
		if len(events) == 0 {
			fmt.Println("No LLM calls recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tPURPOSE\tPROVIDER\tMODEL\tIN\tOUT\tMS\tRESULT")
		for _, e := range events {
			result := "ok"
			if !e.Success {
				result = "failed"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				e.ID, e.Timestamp.Local().Format(timeLayout), e.Purpose, e.Provider,
				truncate(e.Model, 32), e.InputTokens, e.OutputTokens, e.LatencyMs, result)
		}
		return w.Flush()
	},
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show the prompt and reply of one LLM call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid event id %q", args[0])
		}

		s, repo, err := openEvents(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		e, err := repo.GetLLMEvent(s.ctx, id)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		if e == nil {
			return fmt.Errorf("no LLM call with id %d", id)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(e)
		}
		printEvent(os.Stdout, e)
		return nil
	},
}

func printEvent(out io.Writer, e *store.LLMRequestEventRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%d\n", e.ID)
	fmt.Fprintf(w, "Time:\t%s\n", e.Timestamp.Local().Format(timeLayout))
	fmt.Fprintf(w, "Provider:\t%s (%s)\n", e.Provider, e.Model)
	fmt.Fprintf(w, "Purpose:\t%s\n", e.Purpose)
	fmt.Fprintf(w, "Tokens:\t%d in, %d out\n", e.InputTokens, e.OutputTokens)
	fmt.Fprintf(w, "Latency:\t%s\n", time.Duration(e.LatencyMs)*time.Millisecond)
	if e.StopReason != "" {
		fmt.Fprintf(w, "Stopped:\t%s\n", e.StopReason)
	}
	if e.Success {
		fmt.Fprintln(w, "Result:\tok")
	} else {
		fmt.Fprintf(w, "Result:\tfailed: %s\n", e.ErrorMessage)
	}
	w.Flush()

	section := func(title, body string) {
		fmt.Fprintf(out, "\n== %s ==\n", title)
		if body == "" {
			fmt.Fprintln(out, "(not captured)")
			return
		}
		fmt.Fprintln(out, indentJSON(body))
	}
	section("Request", e.RequestBody)
	section("Response", e.ResponseBody)
}

// indentJSON pretty-prints body when it is JSON and returns it unchanged
// otherwise. Truncated replies are recorded as-is.
func indentJSON(body string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(body), "", "  "); err != nil {
		return body
	}
	return buf.String()
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize token usage by purpose and estimated cost by model",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, repo, err := openEvents(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		byPurpose, err := repo.LLMUsageByPurpose(s.ctx)
		if err != nil {
			return fmt.Errorf("usage by purpose: %w", err)
		}
		if len(byPurpose) == 0 {
			fmt.Println("No LLM calls recorded.")
			return nil
		}
		byModel, err := repo.LLMUsageByModel(s.ctx)
		if err != nil {
			return fmt.Errorf("usage by model: %w", err)
		}

		printUsage(os.Stdout, byPurpose, byModel)
		return nil
	},
}

func printUsage(out io.Writer, byPurpose []store.LLMUsageStats, byModel []store.LLMModelUsage) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "PURPOSE\tCALLS\tINPUT\tOUTPUT\tAVG MS\t")
	var calls, in, outTok int
	for _, u := range byPurpose {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t\n", u.Purpose, u.Calls, u.InputTokens, u.OutputTokens, u.AvgLatencyMs)
		calls += u.Calls
		in += u.InputTokens
		outTok += u.OutputTokens
	}
	fmt.Fprintf(w, "total\t%d\t%d\t%d\t\t\n", calls, in, outTok)
	w.Flush()

	if len(byModel) == 0 {
		return
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "MODEL\tCALLS\tCOST (USD)\t")
	var total float64
	var unpriced []string
	for _, u := range byModel {
		price := llm.LookupCost(u.Model)
		if price == nil {
			unpriced = append(unpriced, u.Model)
			fmt.Fprintf(w, "%s\t%d\t?\t\n", truncate(u.Model, 32), u.Calls)
			continue
		}
		c := price.Cost(u.InputTokens, u.OutputTokens)
		total += c
		fmt.Fprintf(w, "%s\t%d\t%s\t\n", truncate(u.Model, 32), u.Calls, formatCost(c))
	}
	fmt.Fprintf(w, "total\t\t%s\t\n", formatCost(total))
	w.Flush()

	if len(unpriced) > 0 {
		fmt.Fprintf(out, "\nNo pricing for %s; the total leaves them out.\n", strings.Join(unpriced, ", "))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func formatCost(usd float64) string {
	if usd > 0 && usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Maximum number of calls to show (0 for all)")
	llmListCmd.Flags().StringP("purpose", "p", "", "Only calls with this purpose, e.g. study-plan")
	llmListCmd.Flags().Duration("since", 0, "Only calls newer than this, e.g. 24h")
	llmListCmd.Flags().Bool("failed", false, "Only failed calls")
	llmListCmd.Flags().Bool("json", false, "Print as JSON")
	llmViewCmd.Flags().Bool("json", false, "Print as JSON")

	llmCmd.AddCommand(llmListCmd, llmViewCmd, llmStatsCmd)
}
