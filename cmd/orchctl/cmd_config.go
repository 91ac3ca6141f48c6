package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"jan-server/services/orchestrator-api/internal/config"
	"jan-server/services/orchestrator-api/internal/domain/model"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load configuration from the environment and print it",
	Long:  `Parse the environment exactly as the server does, report errors, and print the effective values with secrets masked.`,
	RunE:  runConfigCheck,
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the model registry file",
	RunE:  runConfigSchema,
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configSchemaCmd)

	configCheckCmd.Flags().String("format", "yaml", "Output format: yaml, json")
	configSchemaCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	masked := *cfg
	for _, secret := range []*string{&masked.ProviderOpenAIAPIKey, &masked.ProviderLocalAPIKey, &masked.AdminAPIKey, &masked.AuditRedactSalt} {
		if *secret != "" {
			*secret = "********"
		}
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		return printJSON(masked)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(masked)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func runConfigSchema(cmd *cobra.Command, args []string) error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            false,
		ExpandedStruct:            true,
	}
	schema := reflector.Reflect(&model.RegistryDocument{})
	schema.Title = "Orchestrator model registry"
	schema.Description = "Models, prices and fallback chains loaded from MODEL_REGISTRY_FILE"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	fmt.Printf("✓ Generated %s\n", output)
	return nil
}
