// This file implements the preprocess command: run the completion
// pre-processing pipeline over a payload and print the resulting
// context.
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/adalundhe/anvil/core/completions"
	"github.com/adalundhe/anvil/core/preprocess"
)

var preprocessCommercial bool

var preprocessCmd = &cobra.Command{
	Use:   "preprocess [payload.json]",
	Short: "Pre-process a completion payload into model context",
	Long: `Pre-process a completion request payload.

The payload is a JSON document with "prompt" and "metadata" fields, read
from the given file or from stdin. The reconstructed context is written
to stdout; multi-task shorthand violations are written to stderr.

Examples:
  anvil preprocess payload.json
  cat payload.json | anvil preprocess
  anvil preprocess --commercial payload.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreprocess,
}

func init() {
	preprocessCmd.Flags().BoolVar(&preprocessCommercial, "commercial", false,
		"treat the caller as a commercial user entitled to variable injection")
	rootCmd.AddCommand(preprocessCmd)
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	input := cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open payload: %w", err)
		}
		defer f.Close()
		input = f
	}

	cc, err := decodePayload(input, preprocessCommercial)
	if err != nil {
		return err
	}

	stage := preprocess.NewStage(preprocess.Options{
		AdditionalContextEnabled: cfg.Completions.AdditionalContextEnabled,
		MultiTaskDelimiter:       cfg.Completions.MultiTaskDelimiter,
	}, logger)

	if err := stage.Process(cc); err != nil {
		var invalid *preprocess.InvalidYAMLError
		if errors.As(err, &invalid) {
			for _, msg := range invalid.Messages() {
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}
		}
		return err
	}

	logger.Debug("preprocessed payload",
		"fileType", cc.Metadata.AnsibleFileType.String(),
		"contextBytes", len(cc.Payload.Context))

	fmt.Fprint(cmd.OutOrStdout(), cc.Payload.Context)
	return nil
}

func decodePayload(r io.Reader, commercial bool) (*completions.CompletionContext, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	var req completions.CompletionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	return completions.NewCompletionContext(req, completions.RequestInfo{
		CommercialUser: commercial,
	}), nil
}
