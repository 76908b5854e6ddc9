package nodes

import (
	"log/slog"

	"github.com/petal-labs/behaveflow/core"
	"github.com/petal-labs/behaveflow/registry"
)

// Delay continues on a new fiber once duration seconds have passed.
// Triggers that arrive while a timer is pending are absorbed.
type Delay struct {
	core.BaseNode
	logger *slog.Logger
	state  *core.State[delayState]

	// gen invalidates timers armed before the last Dispose.
	gen  int
	stop func() bool
}

var _ core.AsyncNode = (*Delay)(nil)

type delayState struct {
	TimeoutPending bool `json:"timeoutPending"`
}

// Triggered arms the timer unless one is already pending.
func (n *Delay) Triggered(e core.Engine, _ string, finished func()) error {
	st, err := n.state.Get()
	if err != nil {
		return err
	}
	if st.TimeoutPending {
		return nil
	}
	duration, err := core.ReadInput[float64](n, "duration")
	if err != nil {
		return err
	}
	if err := n.state.Set(delayState{TimeoutPending: true}); err != nil {
		return err
	}

	gen := n.gen
	n.stop = e.AfterFunc(seconds(duration), func() {
		if gen != n.gen {
			return
		}
		st, err := n.state.Get()
		if err != nil || !st.TimeoutPending {
			return
		}
		if err := n.state.Set(delayState{}); err != nil {
			n.logger.Error("delay state not cleared", "node_id", n.ID(), "error", err)
		}
		if err := e.CommitToNewFiber(n, "flow", nil); err != nil {
			n.logger.Debug("delay commit failed", "node_id", n.ID(), "error", err)
		}
		finished()
	})
	return nil
}

// Dispose cancels a pending timer.
func (n *Delay) Dispose() error {
	n.gen++
	if n.stop != nil {
		n.stop()
		n.stop = nil
	}
	return n.state.Set(delayState{})
}

// DelayDefinition describes time/delay.
func DelayDefinition() registry.NodeDefinition {
	desc := core.Description{
		TypeName:        "time/delay",
		OtherTypeNames:  []string{"flow/delay"},
		Category:        "Time",
		Label:           "Delay",
		HelpDescription: "Continues after the given number of seconds.",
	}
	return define(desc, nil, func(desc core.Description, deps registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
		return &Delay{
			BaseNode: core.NewBaseNode(id, desc, core.NodeTypeAsync,
				[]*core.Socket{
					core.NewFlowSocket("flow"),
					core.NewSocket("float", "duration").WithDefault(1.0),
				},
				[]*core.Socket{core.NewFlowSocket("flow")},
				cfg),
			logger: loggerOf(deps),
			state:  core.NewState(id, deps.State, delayState{}),
		}, nil
	})
}

// Debounce continues once it has not been triggered for waitDuration
// seconds. Each trigger restarts the wait; "cancel" drops it.
type Debounce struct {
	core.BaseNode
	logger *slog.Logger
	state  *core.State[debounceState]
	stop   func() bool
}

var _ core.AsyncNode = (*Debounce)(nil)

type debounceState struct {
	TriggerVersion int `json:"triggerVersion"`
}

// Triggered restarts the wait, or cancels it when socket is "cancel".
// A cancel trigger finishes at once.
func (n *Debounce) Triggered(e core.Engine, socket string, finished func()) error {
	version, err := n.bump()
	if err != nil {
		return err
	}
	if socket == "cancel" {
		finished()
		return nil
	}

	wait, err := core.ReadInput[float64](n, "waitDuration")
	if err != nil {
		return err
	}
	n.stop = e.AfterFunc(seconds(wait), func() {
		st, err := n.state.Get()
		if err != nil || st.TriggerVersion != version {
			return
		}
		if err := e.CommitToNewFiber(n, "flow", nil); err != nil {
			n.logger.Debug("debounce commit failed", "node_id", n.ID(), "error", err)
		}
		finished()
	})
	return nil
}

// bump invalidates every armed timer and returns the new version.
func (n *Debounce) bump() (int, error) {
	if n.stop != nil {
		n.stop()
		n.stop = nil
	}
	var version int
	err := n.state.Update(func(s *debounceState) {
		s.TriggerVersion++
		version = s.TriggerVersion
	})
	return version, err
}

// Dispose invalidates a pending wait, as a cancel trigger does.
func (n *Debounce) Dispose() error {
	_, err := n.bump()
	return err
}

// DebounceDefinition describes flow/debounce.
func DebounceDefinition() registry.NodeDefinition {
	desc := core.Description{
		TypeName:        "flow/debounce",
		Category:        "Flow",
		Label:           "Debounce",
		HelpDescription: "Continues once triggers stop arriving for waitDuration seconds.",
	}
	return define(desc, nil, func(desc core.Description, deps registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
		return &Debounce{
			BaseNode: core.NewBaseNode(id, desc, core.NodeTypeAsync,
				[]*core.Socket{
					core.NewFlowSocket("flow"),
					core.NewSocket("float", "waitDuration").WithDefault(1.0),
					core.NewFlowSocket("cancel"),
				},
				[]*core.Socket{core.NewFlowSocket("flow")},
				cfg),
			logger: loggerOf(deps),
			state:  core.NewState(id, deps.State, debounceState{}),
		}, nil
	})
}
