package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var transcriptOpts struct {
	maxAge time.Duration
	raw    bool
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Manage conversation transcripts",
}

var transcriptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Args:  cobra.NoArgs,
	RunE:  runTranscriptList,
}

var transcriptShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscriptShow,
}

var transcriptDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscriptDelete,
}

var transcriptPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete conversations not modified within --max-age",
	Args:  cobra.NoArgs,
	RunE:  runTranscriptPrune,
}

var transcriptRepairCmd = &cobra.Command{
	Use:   "repair <key>",
	Short: "Drop unreadable lines from a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscriptRepair,
}

func init() {
	transcriptShowCmd.Flags().BoolVar(&transcriptOpts.raw, "json", false, "print messages as JSON lines")
	transcriptPruneCmd.Flags().DurationVar(&transcriptOpts.maxAge, "max-age", 0, "age threshold (default transcripts.max_age)")

	transcriptCmd.AddCommand(transcriptListCmd, transcriptShowCmd, transcriptDeleteCmd, transcriptPruneCmd, transcriptRepairCmd)
	rootCmd.AddCommand(transcriptCmd)
}

func runTranscriptList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ts, err := a.openTranscripts()
	if err != nil {
		return err
	}
	keys, err := ts.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tMESSAGES\tSIZE\tMODIFIED")
	for _, key := range keys {
		info, err := ts.Info(cmd.Context(), key)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", info.Key, info.MessageCount, info.Size, info.LastModified.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runTranscriptShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ts, err := a.openTranscripts()
	if err != nil {
		return err
	}
	msgs, err := ts.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, msg := range msgs {
		if transcriptOpts.raw {
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			continue
		}
		fmt.Fprintf(out, "[%s] %s\n", msg.Role(), summarize(msg))
	}
	return nil
}

func runTranscriptDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ts, err := a.openTranscripts()
	if err != nil {
		return err
	}
	if err := ts.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func runTranscriptPrune(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	maxAge := transcriptOpts.maxAge
	if maxAge == 0 {
		maxAge = a.cfg.Transcripts.MaxAge
	}
	if maxAge <= 0 {
		return fmt.Errorf("no max age: pass --max-age or set transcripts.max_age")
	}

	ts, err := a.openTranscripts()
	if err != nil {
		return err
	}
	pruned, err := ts.Prune(cmd.Context(), maxAge)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d transcripts\n", len(pruned))
	return nil
}

func runTranscriptRepair(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ts, err := a.openTranscripts()
	if err != nil {
		return err
	}
	if err := ts.Repair(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Repaired %s\n", args[0])
	return nil
}
