// Package nodes provides the core node profile: lifecycle events, flow
// control, timers and basic math and logic functions.
package nodes

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/petal-labs/behaveflow/core"
	"github.com/petal-labs/behaveflow/registry"
)

// ErrNoLifecycle is returned by lifecycle event nodes initialized without
// a lifecycle emitter.
var ErrNoLifecycle = errors.New("no lifecycle emitter configured")

// builder constructs a node from the description of its registered type.
type builder func(desc core.Description, deps registry.Dependencies, id string, cfg core.Configuration) (core.Node, error)

func define(desc core.Description, config map[string]registry.ConfigDef, build builder) registry.NodeDefinition {
	return registry.NodeDefinition{
		TypeName:        desc.TypeName,
		OtherTypeNames:  desc.OtherTypeNames,
		Category:        desc.Category,
		Label:           desc.Label,
		HelpDescription: desc.HelpDescription,
		Configuration:   config,
		Factory: func(deps registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
			return build(desc, deps, id, cfg)
		},
	}
}

// CoreProfile returns the definitions of every core node type.
func CoreProfile() []registry.NodeDefinition {
	defs := []registry.NodeDefinition{
		OnStartDefinition(),
		OnTickDefinition(),
		OnEndDefinition(),
		SequenceDefinition(),
		BranchDefinition(),
		WaitAllDefinition(),
		DoOnceDefinition(),
		CounterDefinition(),
		ForLoopDefinition(),
		LogDefinition(),
		DelayDefinition(),
		DebounceDefinition(),
	}
	return append(defs, functionDefinitions()...)
}

// RegisterCoreProfile registers the core node types with r.
func RegisterCoreProfile(r *registry.Registry) {
	for _, def := range CoreProfile() {
		r.Register(def)
	}
}

// numberedSockets returns n sockets named "1" to "n".
func numberedSockets(valueType string, n int) []*core.Socket {
	sockets := make([]*core.Socket, 0, n)
	for i := 1; i <= n; i++ {
		sockets = append(sockets, core.NewSocket(valueType, strconv.Itoa(i)))
	}
	return sockets
}

// seconds converts a float number of seconds to a duration, clamping
// negative values to zero.
func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func loggerOf(deps registry.Dependencies) *slog.Logger {
	if deps.Logger != nil {
		return deps.Logger
	}
	return slog.Default()
}

func positive(name string, v int) error {
	if v < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", name, v)
	}
	return nil
}
