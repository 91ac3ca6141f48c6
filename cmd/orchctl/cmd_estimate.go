package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"jan-server/services/orchestrator-api/internal/domain/model"
	"jan-server/services/orchestrator-api/internal/domain/token"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate [text]",
	Short: "Estimate the token count and cost of a prompt",
	Long: `Estimate tokens with the same estimators the server uses. Reads stdin
when no text is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEstimate,
}

func init() {
	estimateCmd.Flags().String("estimator", "heuristic", "heuristic or tiktoken")
	estimateCmd.Flags().StringP("model", "m", "", "Price the prompt for this model")
}

func runEstimate(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		text = string(data)
	}

	kind, _ := cmd.Flags().GetString("estimator")
	var estimator token.Estimator
	switch strings.ToLower(kind) {
	case "heuristic":
		estimator = token.Default
	case "tiktoken":
		tk := token.NewTiktokenEstimator(token.DefaultEncoding)
		if err := tk.Load(); err != nil {
			return err
		}
		estimator = tk
	default:
		return fmt.Errorf("unknown estimator %q", kind)
	}

	n := estimator.Estimate(text)
	fmt.Printf("tokens: %d\n", n)

	if modelName, _ := cmd.Flags().GetString("model"); modelName != "" {
		registry := model.NewDefaultRegistry()
		fmt.Printf("prompt cost on %s: $%s\n", modelName, registry.CostOf(modelName, n, 0).String())
		if window := registry.ContextWindowOf(modelName); n > window {
			fmt.Fprintf(os.Stderr, "warning: exceeds the %d token context window\n", window)
		}
	}
	return nil
}
