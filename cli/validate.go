package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/petal-labs/behaveflow/graph"
	"github.com/petal-labs/behaveflow/lifecycle"
	"github.com/petal-labs/behaveflow/loader"
	"github.com/petal-labs/behaveflow/nodes"
	"github.com/petal-labs/behaveflow/registry"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a behavior graph file without executing it",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")

	_, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	reg, err := newRegistry()
	if err != nil {
		return err
	}

	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}
	deps := registry.Dependencies{Logger: logger, Lifecycle: lifecycle.NewManualEmitter()}
	_, diags := graph.Build(doc, reg, deps)

	if format == "json" {
		printDiagnosticsJSON(cmd.OutOrStdout(), diags)
	} else {
		printDiagnosticsText(cmd.OutOrStdout(), diags)
	}

	if graph.HasErrors(diags) || (strict && len(graph.Warnings(diags)) > 0) {
		return exitError(exitValidation, "validation failed")
	}
	return nil
}

// newRegistry returns a registry holding the core profile.
func newRegistry() (*registry.Registry, error) {
	reg := registry.New()
	nodes.RegisterCoreProfile(reg)
	if err := reg.Validate(); err != nil {
		return nil, exitError(exitRuntime, "invalid node registry: %v", err)
	}
	return reg, nil
}

func loadDocument(path string) (*graph.Document, error) {
	doc, err := loader.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", path)
		}
		return nil, exitError(exitValidation, "%v", err)
	}
	return doc, nil
}
