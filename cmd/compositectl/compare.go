package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/composition"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
)

func compareCmd(state *cliState) *cobra.Command {
	var (
		threshold float64
		format    string
	)

	cmd := &cobra.Command{
		Use:   "compare OLD.json NEW.json",
		Short: "Diff two composites exported as JSON",
		Long: "Compares two composites as returned by the API (GET /api/composites/{id})\n" +
			"and prints the added, removed and changed components with the total change score.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if threshold <= 0 {
				return fmt.Errorf("threshold must be positive, got %v", threshold)
			}

			oldC, err := readComposite(args[0])
			if err != nil {
				return err
			}
			newC, err := readComposite(args[1])
			if err != nil {
				return err
			}

			comparison := composition.Compare(oldC, newC, threshold)
			state.logger.Debug("Compared composites",
				zap.Float64("total_change_score", comparison.TotalChangeScore),
				zap.Bool("significant", comparison.SignificantChange))

			return outputFormat(format).write(cmd.OutOrStdout(), comparison)
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", composition.DefaultSignificanceThreshold, "change score at which the difference is significant")
	cmd.Flags().StringVarP(&format, "format", "o", string(formatJSON), "output format: json or yaml")
	return cmd
}

// readComposite accepts either a bare composite or the API envelope around one.
func readComposite(path string) (*models.Composite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var envelope struct {
		Data *models.Composite `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}

	var c models.Composite
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse composite %s: %w", path, err)
	}
	return &c, nil
}
