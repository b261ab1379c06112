package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kalambet/voicepipe/internal/pipeline"
	"github.com/kalambet/voicepipe/internal/storage"
)

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline once and record the attempt",
	Long: `Run the full pipeline once: speech recognition, text generation, and
speech synthesis, recording the attempt in the user's history.

Examples:
  voicepipe run
  voicepipe run --user 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/run-full-pipeline"
		if cmd.Flags().Changed("user") {
			user, _ := cmd.Flags().GetInt64("user")
			path = fmt.Sprintf("%s?user_id=%d", path, user)
		}

		printStep("running pipeline...")
		resp, err := client.post(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result pipeline.Result
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStageStatus("recognize", result.Recognize)
		printStageStatus("generate", result.Generate)
		printStageStatus("synthesize", result.Synthesize)

		if !result.Success {
			printError("pipeline run failed")
			for _, e := range result.Errors {
				printStatus("error", "%s", e)
			}
			return fmt.Errorf("run %s did not reach persistence", result.RunID)
		}

		if result.TTSSuccess {
			printSuccess("pipeline complete, audio stored as %s", deref(result.FinalData.OutputAudioRef))
		} else {
			printWarning("pipeline complete, but speech synthesis failed — attempt recorded without audio")
		}
		printStatus("recognized", "%s", result.FinalData.RecognizedText)
		printStatus("generated", "%s", result.FinalData.GeneratedText)
		return nil
	},
}

func printStageStatus(name string, st *pipeline.StageStatus) {
	switch {
	case st == nil:
		printStatus(name, "skipped")
	case st.Success:
		printStatus(name, "ok")
	default:
		printStatus(name, "failed (%s)", st.Error)
	}
}

func deref(p *string) string {
	if p == nil {
		return "(none)"
	}
	return *p
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show a user's pipeline attempt history",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetInt64("user")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/users/%d", user))
		if err != nil {
			return err
		}

		var h storage.UserHistory
		if err := decodeJSON(resp, &h); err != nil {
			return err
		}

		if h.Len() == 0 {
			fmt.Printf("no attempts recorded for user %d\n", h.UserID)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tINPUT\tRECOGNIZED\tGENERATED\tOUTPUT")
		for i := 0; i < h.Len(); i++ {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				i+1,
				deref(h.InputAudioRefs[i]),
				h.RecognizedTexts[i],
				h.GeneratedTexts[i],
				deref(h.OutputAudioRefs[i]),
			)
		}
		return w.Flush()
	},
}

// --- users ---

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List all known users and their attempt counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/users")
		if err != nil {
			return err
		}

		var histories []storage.UserHistory
		if err := decodeJSON(resp, &histories); err != nil {
			return err
		}

		if len(histories) == 0 {
			fmt.Println("no users recorded yet")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tATTEMPTS")
		for _, h := range histories {
			fmt.Fprintf(w, "%d\t%d\n", h.UserID, h.Len())
		}
		return w.Flush()
	},
}

func init() {
	runCmd.Flags().Int64("user", 0, "user whose history the run extends (defaults to the configured user)")
	historyCmd.Flags().Int64("user", 10, "user to show history for")
}
