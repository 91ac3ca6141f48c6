package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"jan-server/services/orchestrator-api/internal/domain/model"
	"jan-server/services/orchestrator-api/internal/interfaces/httpserver/responses"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model catalogue",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the models a running server routes to",
	RunE:  runModelsList,
}

var modelsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a model registry file and print its fallback chains",
	Long: `Load a YAML model registry exactly as the server would at startup and
print each model's fallback chain. Without --file the built-in registry is shown.`,
	RunE: runModelsValidate,
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsValidateCmd)

	modelsValidateCmd.Flags().StringP("file", "f", "", "Registry file (default: built-in registry)")
}

func runModelsList(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(cmd)
	if err != nil {
		return err
	}
	var out responses.ModelList
	resp, err := client.request(cmd).SetResult(&out).Get("/v1/models")
	if err := check(resp, err); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPROVIDER\tCONTEXT\tIN/1K\tOUT/1K\tFALLBACK")
	for _, m := range out.Data {
		name := m.ID
		if m.Default {
			name += " (default)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", name, m.OwnedBy, m.ContextWindow, m.PriceInPerK, m.PriceOutPerK, m.Fallback)
	}
	return w.Flush()
}

func runModelsValidate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	registry := model.NewDefaultRegistry()
	if path != "" {
		loaded, err := model.LoadRegistryFile(path)
		if err != nil {
			return err
		}
		registry = loaded
	}

	fmt.Printf("default model: %s\n", registry.DefaultModel())
	for _, spec := range registry.List() {
		fmt.Printf("  %s [%s, %d tokens]: %s\n", spec.Name, spec.Provider, spec.ContextWindow, strings.Join(registry.Chain(spec.Name), " -> "))
	}
	fmt.Println("✓ registry is valid")
	return nil
}
