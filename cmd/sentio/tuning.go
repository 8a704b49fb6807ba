package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/internal/thresholds"
	"github.com/JaimeStill/sentio/pkg/formatting"
)

func parseModalities(args []string) ([]labels.Modality, error) {
	if len(args) == 0 {
		return labels.Modalities, nil
	}
	mods := make([]labels.Modality, 0, len(args))
	for _, arg := range args {
		m, ok := labels.ParseModality(arg)
		if !ok {
			return nil, fmt.Errorf("%w: %s", thresholds.ErrUnknownModality, arg)
		}
		mods = append(mods, m)
	}
	return mods, nil
}

func thresholdsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "thresholds [modality...]",
		Short: "Show active and suggested thresholds",
		RunE: func(cmd *cobra.Command, args []string) error {
			mods, err := parseModalities(args)
			if err != nil {
				return err
			}

			summary, err := a.domain.Thresholds.Summary(mods...)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), summary, func(w io.Writer) {
				for _, m := range mods {
					s := summary.Modalities[m]
					fmt.Fprintf(w, "%s:\n", m)
					fmt.Fprintf(w, "  current:   %.3f\n", s.ThresholdStatus.Current)
					if s.ThresholdStatus.Suggested != nil {
						fmt.Fprintf(w, "  suggested: %.3f\n", *s.ThresholdStatus.Suggested)
					} else {
						fmt.Fprintln(w, "  suggested: none")
					}
					fmt.Fprintf(w, "  feedback:  %d (%s correct, %d near the boundary)\n",
						s.Statistics.TotalSamples, formatting.Percent(s.Statistics.Accuracy, 1), s.Statistics.BoundaryErrors)
					if s.ThresholdStatus.NeedsAdjustment {
						fmt.Fprintf(w, "  run 'sentio apply %s' to adopt the suggestion\n", m)
					}
				}
			})
		},
	}
}

func applyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <modality>",
		Short: "Adopt the suggested threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mods, err := parseModalities(args)
			if err != nil {
				return err
			}
			m := mods[0]

			applied, err := a.domain.Thresholds.ApplyUpdate(cmd.Context(), m)
			if err != nil {
				return err
			}
			current := a.domain.Thresholds.Current(m)

			out := map[string]any{"modality": m, "applied": applied, "threshold": current}
			return a.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				if applied {
					fmt.Fprintf(w, "%s threshold is now %.3f\n", m, current)
				} else {
					fmt.Fprintf(w, "%s threshold unchanged at %.3f\n", m, current)
				}
			})
		},
	}
}

func referenceCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reference",
		Short: "Show reference sample statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := a.domain.Reference.Statistics()
			return a.print(cmd.OutOrStdout(), stats, func(w io.Writer) {
				fmt.Fprintf(w, "healthy: %d\n", stats.HealthySamples)
				fmt.Fprintf(w, "sick:    %d\n", stats.SickSamples)
				fmt.Fprintln(w, stats.StatusMessage)
			})
		},
	}
}
