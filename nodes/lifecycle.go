package nodes

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/petal-labs/behaveflow/core"
	"github.com/petal-labs/behaveflow/lifecycle"
	"github.com/petal-labs/behaveflow/registry"
)

// LifecycleNode is an event node that starts a fiber each time its pulse
// fires. The tick variant also reports the elapsed and absolute time.
type LifecycleNode struct {
	core.BaseNode
	pulse   lifecycle.Pulse
	emitter lifecycle.Emitter
	logger  *slog.Logger

	engine      core.Engine
	unsubscribe func()
	state       *core.State[tickState]
}

// tickState holds the engine time of the previous tick. Init restarts it,
// so a rehydrated value never spans two runs.
type tickState struct {
	LastTick time.Time `json:"lastTick"`
}

var _ core.EventNode = (*LifecycleNode)(nil)

func newLifecycleNode(desc core.Description, deps registry.Dependencies, id string, cfg core.Configuration, pulse lifecycle.Pulse) *LifecycleNode {
	outputs := []*core.Socket{core.NewFlowSocket("flow")}
	if pulse == lifecycle.PulseTick {
		outputs = append(outputs,
			core.NewSocket("float", "deltaSeconds"),
			core.NewSocket("float", "time"),
		)
	}
	return &LifecycleNode{
		BaseNode: core.NewBaseNode(id, desc, core.NodeTypeEvent, nil, outputs, cfg),
		pulse:    pulse,
		emitter:  deps.Lifecycle,
		logger:   loggerOf(deps),
		state:    core.NewState(id, deps.State, tickState{}),
	}
}

// Pulse returns the pulse the node listens to.
func (n *LifecycleNode) Pulse() lifecycle.Pulse {
	return n.pulse
}

// Init subscribes to the lifecycle emitter.
func (n *LifecycleNode) Init(e core.Engine) error {
	if n.emitter == nil {
		return fmt.Errorf("%s: %w", n.Description().TypeName, ErrNoLifecycle)
	}
	if n.unsubscribe != nil {
		return nil
	}
	if n.pulse == lifecycle.PulseTick {
		if err := n.state.Set(tickState{LastTick: e.Now()}); err != nil {
			return err
		}
	}
	n.engine = e
	n.unsubscribe = n.emitter.Subscribe(n.pulse, n.onPulse)
	return nil
}

func (n *LifecycleNode) onPulse() {
	if n.pulse == lifecycle.PulseTick {
		if err := n.recordTick(); err != nil {
			n.logger.Error("tick state", "node_id", n.ID(), "error", err)
		}
	}
	if err := n.engine.CommitToNewFiber(n, "flow", nil); err != nil {
		n.logger.Debug("lifecycle pulse not committed",
			"node_id", n.ID(),
			"pulse", n.pulse.String(),
			"error", err,
		)
	}
}

func (n *LifecycleNode) recordTick() error {
	st, err := n.state.Get()
	if err != nil {
		return err
	}
	now := n.engine.Now()
	_ = n.Write("deltaSeconds", now.Sub(st.LastTick).Seconds())
	_ = n.Write("time", float64(now.UnixMilli())/1000)
	return n.state.Set(tickState{LastTick: now})
}

// Dispose removes the subscription. It is safe to call without Init.
func (n *LifecycleNode) Dispose() error {
	if n.unsubscribe != nil {
		n.unsubscribe()
		n.unsubscribe = nil
	}
	return nil
}

// OnStartDefinition describes lifecycle/onStart.
func OnStartDefinition() registry.NodeDefinition {
	return lifecycleDefinition("lifecycle/onStart", "On Start", "Fires once when the host starts the graph.", lifecycle.PulseStart)
}

// OnTickDefinition describes lifecycle/onTick.
func OnTickDefinition() registry.NodeDefinition {
	return lifecycleDefinition("lifecycle/onTick", "On Tick", "Fires on every host tick with the seconds since the previous tick.", lifecycle.PulseTick)
}

// OnEndDefinition describes lifecycle/onEnd.
func OnEndDefinition() registry.NodeDefinition {
	return lifecycleDefinition("lifecycle/onEnd", "On End", "Fires once when the host stops the graph.", lifecycle.PulseEnd)
}

func lifecycleDefinition(typeName, label, help string, pulse lifecycle.Pulse) registry.NodeDefinition {
	desc := core.Description{
		TypeName:        typeName,
		Category:        "Event",
		Label:           label,
		HelpDescription: help,
	}
	return define(desc, nil, func(desc core.Description, deps registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
		return newLifecycleNode(desc, deps, id, cfg, pulse), nil
	})
}
