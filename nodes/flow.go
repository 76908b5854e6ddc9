package nodes

import (
	"context"
	"log/slog"

	"github.com/petal-labs/behaveflow/core"
	"github.com/petal-labs/behaveflow/registry"
)

// Sequence commits its numbered outputs one after another. Each output's
// downstream walk fully unwinds before the next output is committed.
type Sequence struct {
	core.BaseNode
}

var _ core.FlowNode = (*Sequence)(nil)

// SequenceConfig configures a Sequence.
type SequenceConfig struct {
	NumOutputs int `json:"numOutputs"`
}

// Triggered starts the sequence at output "1".
func (n *Sequence) Triggered(f core.Fiber, _ string) error {
	return n.commitFrom(f, 0)
}

func (n *Sequence) commitFrom(f core.Fiber, i int) error {
	outputs := n.Outputs()
	if i >= len(outputs) {
		return nil
	}
	return f.Commit(n, outputs[i].Name, func() error {
		return n.commitFrom(f, i+1)
	})
}

// SequenceDefinition describes flow/sequence.
func SequenceDefinition() registry.NodeDefinition {
	desc := core.Description{
		TypeName:        "flow/sequence",
		Category:        "Flow",
		Label:           "Sequence",
		HelpDescription: "Runs each output to completion in order.",
	}
	config := map[string]registry.ConfigDef{
		"numOutputs": {ValueType: "integer", DefaultValue: 3},
	}
	return define(desc, config, func(desc core.Description, _ registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
		var c SequenceConfig
		if err := core.DecodeConfig(cfg, &c); err != nil {
			return nil, err
		}
		if err := positive("numOutputs", c.NumOutputs); err != nil {
			return nil, err
		}
		return &Sequence{
			BaseNode: core.NewBaseNode(id, desc, core.NodeTypeFlow,
				[]*core.Socket{core.NewFlowSocket("flow")},
				numberedSockets(core.FlowValueType, c.NumOutputs),
				cfg),
		}, nil
	})
}

// Branch commits "true" or "false" depending on its condition input.
type Branch struct {
	core.BaseNode
}

var _ core.FlowNode = (*Branch)(nil)

// Triggered reads the condition and commits the matching output.
func (n *Branch) Triggered(f core.Fiber, _ string) error {
	cond, err := core.ReadInput[bool](n, "condition")
	if err != nil {
		return err
	}
	if cond {
		return f.Commit(n, "true", nil)
	}
	return f.Commit(n, "false", nil)
}

// BranchDefinition describes flow/branch.
func BranchDefinition() registry.NodeDefinition {
	desc := core.Description{
		TypeName:        "flow/branch",
		Category:        "Flow",
		Label:           "Branch",
		HelpDescription: "Continues through true or false.",
	}
	return define(desc, nil, func(desc core.Description, _ registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
		return &Branch{
			BaseNode: core.NewBaseNode(id, desc, core.NodeTypeFlow,
				[]*core.Socket{
					core.NewFlowSocket("flow"),
					core.NewSocket("boolean", "condition"),
				},
				[]*core.Socket{
					core.NewFlowSocket("true"),
					core.NewFlowSocket("false"),
				},
				cfg),
		}, nil
	})
}

// WaitAll commits its output once every numbered input has been triggered.
// It fires again only after "reset", or immediately re-arms when
// autoReset is true.
type WaitAll struct {
	core.BaseNode
	numInputs int
	state     *core.State[waitAllState]
}

var _ core.FlowNode = (*WaitAll)(nil)

// WaitAllConfig configures a WaitAll.
type WaitAllConfig struct {
	NumInputs int `json:"numInputs"`
}

type waitAllState struct {
	Triggered       map[string]bool `json:"triggered"`
	Count           int             `json:"count"`
	OutputTriggered bool            `json:"outputTriggered"`
}

// Triggered records the input and commits once all inputs are in.
func (n *WaitAll) Triggered(f core.Fiber, socket string) error {
	if socket == "reset" {
		return n.state.Reset()
	}

	st, err := n.state.Get()
	if err != nil {
		return err
	}
	if st.Triggered == nil {
		st.Triggered = make(map[string]bool, n.numInputs)
	}
	if st.Triggered[socket] {
		return nil
	}
	st.Triggered[socket] = true
	st.Count++

	if st.Count == n.numInputs && !st.OutputTriggered {
		if err := f.Commit(n, "flow", nil); err != nil {
			return err
		}
		st.OutputTriggered = true

		autoReset, err := core.ReadInput[bool](n, "autoReset")
		if err != nil {
			return err
		}
		if autoReset {
			return n.state.Reset()
		}
	}
	return n.state.Set(st)
}

// WaitAllDefinition describes flow/waitAll.
func WaitAllDefinition() registry.NodeDefinition {
	desc := core.Description{
		TypeName:        "flow/waitAll",
		Category:        "Flow",
		Label:           "Wait All",
		HelpDescription: "Continues once every numbered input has been triggered.",
	}
	config := map[string]registry.ConfigDef{
		"numInputs": {ValueType: "integer", DefaultValue: 3},
	}
	return define(desc, config, func(desc core.Description, deps registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
		var c WaitAllConfig
		if err := core.DecodeConfig(cfg, &c); err != nil {
			return nil, err
		}
		if err := positive("numInputs", c.NumInputs); err != nil {
			return nil, err
		}
		inputs := numberedSockets(core.FlowValueType, c.NumInputs)
		inputs = append(inputs,
			core.NewFlowSocket("reset"),
			core.NewSocket("boolean", "autoReset").WithDefault(false),
		)
		return &WaitAll{
			BaseNode: core.NewBaseNode(id, desc, core.NodeTypeFlow,
				inputs,
				[]*core.Socket{core.NewFlowSocket("flow")},
				cfg),
			numInputs: c.NumInputs,
			state:     core.NewState(id, deps.State, waitAllState{Triggered: map[string]bool{}}),
		}, nil
	})
}

// DoOnce lets the first trigger through and blocks the rest until reset.
type DoOnce struct {
	core.BaseNode
	state *core.State[doOnceState]
}

var _ core.FlowNode = (*DoOnce)(nil)

type doOnceState struct {
	Fired bool `json:"fired"`
}

// Triggered commits "flow" the first time, or re-arms on "reset".
func (n *DoOnce) Triggered(f core.Fiber, socket string) error {
	if socket == "reset" {
		return n.state.Reset()
	}
	st, err := n.state.Get()
	if err != nil {
		return err
	}
	if st.Fired {
		return nil
	}
	if err := f.Commit(n, "flow", nil); err != nil {
		return err
	}
	return n.state.Set(doOnceState{Fired: true})
}

// DoOnceDefinition describes flow/doOnce.
func DoOnceDefinition() registry.NodeDefinition {
	desc := core.Description{
		TypeName:        "flow/doOnce",
		Category:        "Flow",
		Label:           "Do Once",
		HelpDescription: "Continues only on the first trigger until reset.",
	}
	return define(desc, nil, func(desc core.Description, deps registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
		return &DoOnce{
			BaseNode: core.NewBaseNode(id, desc, core.NodeTypeFlow,
				[]*core.Socket{core.NewFlowSocket("flow"), core.NewFlowSocket("reset")},
				[]*core.Socket{core.NewFlowSocket("flow")},
				cfg),
			state: core.NewState(id, deps.State, doOnceState{}),
		}, nil
	})
}

// Counter counts its triggers and passes flow through.
type Counter struct {
	core.BaseNode
	state *core.State[counterState]
}

var _ core.FlowNode = (*Counter)(nil)

type counterState struct {
	Count int64 `json:"count"`
}

// Triggered increments the count, or zeroes it on "reset".
func (n *Counter) Triggered(f core.Fiber, socket string) error {
	if socket == "reset" {
		if err := n.state.Reset(); err != nil {
			return err
		}
		return n.Write("count", int64(0))
	}

	var count int64
	if err := n.state.Update(func(s *counterState) {
		s.Count++
		count = s.Count
	}); err != nil {
		return err
	}
	if err := n.Write("count", count); err != nil {
		return err
	}
	return f.Commit(n, "flow", nil)
}

// CounterDefinition describes flow/counter.
func CounterDefinition() registry.NodeDefinition {
	desc := core.Description{
		TypeName:        "flow/counter",
		Category:        "Flow",
		Label:           "Counter",
		HelpDescription: "Counts how many times flow passed through.",
	}
	return define(desc, nil, func(desc core.Description, deps registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
		return &Counter{
			BaseNode: core.NewBaseNode(id, desc, core.NodeTypeFlow,
				[]*core.Socket{core.NewFlowSocket("flow"), core.NewFlowSocket("reset")},
				[]*core.Socket{core.NewFlowSocket("flow"), core.NewSocket("integer", "count")},
				cfg),
			state: core.NewState(id, deps.State, counterState{}),
		}, nil
	})
}

// ForLoop commits "loopBody" once per index in [startIndex, endIndex),
// waiting for each body to unwind, then commits "completed".
type ForLoop struct {
	core.BaseNode
}

var _ core.FlowNode = (*ForLoop)(nil)

// Triggered reads the bounds and runs the first iteration.
func (n *ForLoop) Triggered(f core.Fiber, _ string) error {
	start, err := core.ReadInput[int64](n, "startIndex")
	if err != nil {
		return err
	}
	end, err := core.ReadInput[int64](n, "endIndex")
	if err != nil {
		return err
	}
	return n.iterate(f, start, end)
}

func (n *ForLoop) iterate(f core.Fiber, i, end int64) error {
	if i >= end {
		return f.Commit(n, "completed", nil)
	}
	if err := n.Write("index", i); err != nil {
		return err
	}
	return f.Commit(n, "loopBody", func() error {
		return n.iterate(f, i+1, end)
	})
}

// ForLoopDefinition describes flow/forLoop.
func ForLoopDefinition() registry.NodeDefinition {
	desc := core.Description{
		TypeName:        "flow/forLoop",
		Category:        "Flow",
		Label:           "For Loop",
		HelpDescription: "Runs the loop body once per index, then continues through completed.",
	}
	return define(desc, nil, func(desc core.Description, _ registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
		return &ForLoop{
			BaseNode: core.NewBaseNode(id, desc, core.NodeTypeFlow,
				[]*core.Socket{
					core.NewFlowSocket("flow"),
					core.NewSocket("integer", "startIndex").WithDefault(int64(0)),
					core.NewSocket("integer", "endIndex").WithDefault(int64(10)),
				},
				[]*core.Socket{
					core.NewFlowSocket("loopBody"),
					core.NewSocket("integer", "index"),
					core.NewFlowSocket("completed"),
				},
				cfg),
		}, nil
	})
}

// Log writes its text input to the logger and passes flow through.
type Log struct {
	core.BaseNode
	logger *slog.Logger
}

var _ core.FlowNode = (*Log)(nil)

// Triggered logs the text at the configured severity.
func (n *Log) Triggered(f core.Fiber, _ string) error {
	text, err := core.ReadInput[string](n, "text")
	if err != nil {
		return err
	}
	severity, err := core.ReadInput[string](n, "severity")
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	switch severity {
	case "verbose":
		level = slog.LevelDebug
	case "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	n.logger.Log(context.Background(), level, text, "node_id", n.ID())

	return f.Commit(n, "flow", nil)
}

// LogDefinition describes debug/log.
func LogDefinition() registry.NodeDefinition {
	desc := core.Description{
		TypeName:        "debug/log",
		Category:        "Action",
		Label:           "Debug Log",
		HelpDescription: "Writes text to the log.",
	}
	return define(desc, nil, func(desc core.Description, deps registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
		return &Log{
			BaseNode: core.NewBaseNode(id, desc, core.NodeTypeFlow,
				[]*core.Socket{
					core.NewFlowSocket("flow"),
					core.NewSocket("string", "text"),
					core.NewSocket("string", "severity").
						WithDefault("info").
						WithChoices("verbose", "info", "warning", "error"),
				},
				[]*core.Socket{core.NewFlowSocket("flow")},
				cfg),
			logger: loggerOf(deps),
		}, nil
	})
}
