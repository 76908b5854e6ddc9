package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewSpecsCmd creates the "specs" subcommand.
func NewSpecsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "specs",
		Short: "List the registered node types and their sockets",
		Args:  cobra.NoArgs,
		RunE:  runSpecs,
	}
	cmd.Flags().String("format", "json", "Output format: json | text")
	cmd.Flags().String("category", "", "Only list node types in this category")
	return cmd
}

func runSpecs(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	category, _ := cmd.Flags().GetString("category")

	reg, err := newRegistry()
	if err != nil {
		return err
	}
	specs, err := reg.NodeSpecs()
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	if category != "" {
		filtered := specs[:0]
		for _, s := range specs {
			if strings.EqualFold(s.Category, category) {
				filtered = append(filtered, s)
			}
		}
		specs = filtered
	}

	out := cmd.OutOrStdout()
	if format == "text" {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tVARIANT\tCATEGORY\tINPUTS\tOUTPUTS")
		for _, s := range specs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", s.Type, s.NodeType, s.Category, len(s.Inputs), len(s.Outputs))
		}
		return tw.Flush()
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(specs)
}
