package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/behaveflow/bus"
	"github.com/petal-labs/behaveflow/runtime"
)

// NewEventsCmd creates the "events" subcommand.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events [run-id]",
		Short: "List runs or the events persisted for one run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEvents,
	}
	cmd.Flags().String("events-db", "", "SQLite event database written by run --events-db")
	cmd.Flags().StringArray("kind", nil, "Only list events of this kind (repeatable)")
	cmd.Flags().String("node", "", "Only list events of this node")
	cmd.Flags().Uint64("after", 0, "Only list events after this sequence number")
	cmd.Flags().Int("limit", 0, "Maximum number of events (0 = all)")
	cmd.Flags().String("format", "text", "Output format: text | json")
	return cmd
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	dsn := cfg.Events.DB
	if v, _ := cmd.Flags().GetString("events-db"); v != "" {
		dsn = v
	}
	if dsn == "" {
		return exitError(exitConfig, "--events-db is required")
	}

	store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{DSN: dsn})
	if err != nil {
		return exitError(exitRuntime, "opening event store: %v", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("format")

	if len(args) == 0 {
		ids, err := store.RunIDs(ctx)
		if err != nil {
			return exitError(exitRuntime, "%v", err)
		}
		if format == "json" {
			if ids == nil {
				ids = []string{}
			}
			return json.NewEncoder(out).Encode(ids)
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	q := bus.Query{RunID: args[0]}
	q.NodeID, _ = cmd.Flags().GetString("node")
	q.AfterSeq, _ = cmd.Flags().GetUint64("after")
	q.Limit, _ = cmd.Flags().GetInt("limit")
	kinds, _ := cmd.Flags().GetStringArray("kind")
	for _, k := range kinds {
		q.Kinds = append(q.Kinds, runtime.EventKind(k))
	}

	events, err := store.List(ctx, q)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}

	if format == "json" {
		if events == nil {
			events = []runtime.Event{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tKIND\tNODE\tTYPE\tFIBER\tELAPSED")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Seq, e.Time.Format(time.RFC3339Nano), e.Kind, e.NodeID, e.TypeName, e.FiberID, e.Elapsed)
	}
	return tw.Flush()
}
