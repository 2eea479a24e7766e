package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-composites/pkg/extraction"
)

type outputFormat string

const (
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
)

func (f outputFormat) write(w io.Writer, v any) error {
	switch f {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q (want json or yaml)", string(f))
}

// extractionFlags are shared by extract and inspect.
type extractionFlags struct {
	synonymsFile      string
	impurityThreshold float64
	delimiter         string
	format            string
}

func (f *extractionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.synonymsFile, "synonyms", "", "YAML file extending the header synonym tables")
	cmd.Flags().Float64Var(&f.impurityThreshold, "impurity-threshold", extraction.DefaultImpurityThreshold,
		"readings below this percentage are impurities")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "field delimiter (detected when empty)")
	cmd.Flags().StringVarP(&f.format, "format", "o", string(formatJSON), "output format: json or yaml")
}

func (f *extractionFlags) options() (extraction.Options, error) {
	syn, err := extraction.LoadSynonyms(f.synonymsFile)
	if err != nil {
		return extraction.Options{}, err
	}
	opts := extraction.Options{Synonyms: &syn, ImpurityThreshold: f.impurityThreshold}

	switch len([]rune(f.delimiter)) {
	case 0:
	case 1:
		opts.Delimiter = []rune(f.delimiter)[0]
	default:
		if f.delimiter != `\t` {
			return extraction.Options{}, fmt.Errorf("delimiter must be a single character, got %q", f.delimiter)
		}
		opts.Delimiter = '\t'
	}
	return opts, nil
}

func extractCmd(state *cliState) *cobra.Command {
	var flags extractionFlags

	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Extract component readings from a chromatography export",
		Long: "Reads a delimited GC/MS export and prints the extracted readings with the\n" +
			"validation report. Exits non-zero when the file cannot be read or the\n" +
			"required columns are missing; content problems are part of the report.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer file.Close()

			start := time.Now()
			result, err := extraction.Extract(file, opts)
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", args[0], err)
			}
			state.logger.Debug("Extracted analysis",
				zap.String("file", args[0]),
				zap.Int("readings", result.ComponentCount),
				zap.Float64("total_percentage", result.TotalPercentage),
				zap.Bool("success", result.Success),
				zap.Duration("elapsed", time.Since(start)))

			return outputFormat(flags.format).write(cmd.OutOrStdout(), result)
		},
	}

	flags.register(cmd)
	return cmd
}

func inspectCmd(state *cliState) *cobra.Command {
	var flags extractionFlags

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Report the structure of a chromatography export without extracting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer file.Close()

			inspection, err := extraction.Inspect(file, opts)
			if err != nil {
				return fmt.Errorf("failed to inspect %s: %w", args[0], err)
			}
			if !inspection.Valid {
				state.logger.Warn("File is missing required columns", zap.String("file", args[0]), zap.String("error", inspection.Error))
			}

			return outputFormat(flags.format).write(cmd.OutOrStdout(), inspection)
		},
	}

	flags.register(cmd)
	return cmd
}
