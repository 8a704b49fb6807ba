package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/sentio/internal/features"
	"github.com/JaimeStill/sentio/internal/staging"
	"github.com/JaimeStill/sentio/pkg/formatting"
)

func stageCommand(a *app) *cobra.Command {
	var (
		cmdArgs staging.StageCommand
		payload string
	)

	cmd := &cobra.Command{
		Use:   "stage <file>",
		Short: "Stage a classified file for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdArgs.FilePath = args[0]
			if payload != "" {
				fm, err := features.Parse([]byte(payload))
				if err != nil {
					return err
				}
				cmdArgs.Features = fm
			}

			rec, err := a.domain.Staging.Stage(cmd.Context(), cmdArgs)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), rec, func(w io.Writer) {
				fmt.Fprintf(w, "staged %s as %s\n", rec.OriginalFile, rec.StagedFile)
			})
		},
	}

	cmd.Flags().StringVarP(&cmdArgs.Modality, "modality", "m", "vision", "Modality: vision or audio")
	cmd.Flags().StringVarP(&cmdArgs.AIClassification, "label", "l", "", "Classifier label")
	cmd.Flags().Float64VarP(&cmdArgs.Confidence, "confidence", "c", 0, "Classifier confidence in [0, 1]")
	cmd.Flags().StringVar(&payload, "features", "", "Analyzer feature payload as a JSON object")
	cmd.MarkFlagRequired("label")

	return cmd
}

func pendingCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List records awaiting review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.domain.Staging.Pending(cmd.Context())
			if err != nil {
				return err
			}
			if records == nil {
				records = []staging.Record{}
			}

			return a.print(cmd.OutOrStdout(), records, func(w io.Writer) {
				if len(records) == 0 {
					fmt.Fprintln(w, "no records pending review")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "STAGED FILE\tMODALITY\tAI LABEL\tCONFIDENCE\tSTAGED AT")
				for _, r := range records {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						r.StagedFile, r.Modality, r.AIClassification, formatting.Percent(r.Confidence, 1),
						r.Timestamp.Format("2006-01-02 15:04:05"),
					)
				}
				tw.Flush()
			})
		},
	}
}

func statsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show review statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := a.domain.Staging.Statistics(cmd.Context())
			if err != nil {
				return err
			}

			return a.print(cmd.OutOrStdout(), stats, func(w io.Writer) {
				fmt.Fprintf(w, "staged:     %d\n", stats.TotalStaged)
				fmt.Fprintf(w, "pending:    %d\n", stats.PendingReview)
				fmt.Fprintf(w, "validated:  %d\n", stats.Validated)
				if stats.Validated > 0 {
					fmt.Fprintf(w, "ai correct: %d (%s)\n", stats.AICorrect, formatting.Percent(stats.Accuracy, 1))
				}
				for mod, c := range stats.ByModality {
					fmt.Fprintf(w, "  %s: %d/%d correct\n", mod, c.Correct, c.Total)
				}
				for label, n := range stats.ByClassification {
					fmt.Fprintf(w, "  %s: %d\n", label, n)
				}
			})
		},
	}
}

func finalizeCommand(a *app) *cobra.Command {
	var (
		agree    bool
		disagree bool
		label    string
	)

	cmd := &cobra.Command{
		Use:   "finalize <staged-file>",
		Short: "Record a reviewer decision for a staged file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if agree == disagree {
				return errors.New("exactly one of --agree or --disagree is required")
			}

			fc := staging.FinalizeCommand{StagedFile: args[0], HumanAgrees: agree}
			if label != "" {
				fc.HumanClassification = &label
			}

			result, err := a.domain.Staging.Finalize(cmd.Context(), fc)
			if err != nil {
				return err
			}

			return a.print(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprintf(w, "finalized %s as %s\n", result.Record.StagedFile, *result.Record.FinalClassification)
				if result.Destination != "" {
					fmt.Fprintf(w, "moved to %s\n", result.Destination)
				}
				if result.ReferenceAdded {
					fmt.Fprintln(w, "added to reference samples")
				}
				if result.FeedbackRecorded {
					fmt.Fprintln(w, "recorded threshold feedback")
				}
			})
		},
	}

	cmd.Flags().BoolVar(&agree, "agree", false, "The classifier label is correct")
	cmd.Flags().BoolVar(&disagree, "disagree", false, "The classifier label is wrong")
	cmd.Flags().StringVar(&label, "label", "", "Correct label when disagreeing")
	cmd.MarkFlagsMutuallyExclusive("agree", "disagree")
	cmd.MarkFlagsMutuallyExclusive("agree", "label")

	return cmd
}
