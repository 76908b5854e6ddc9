package nodes

import (
	"time"

	"github.com/petal-labs/behaveflow/core"
	"github.com/petal-labs/behaveflow/registry"
)

// Unary is a function node computing result = eval(a).
type Unary[A, R any] struct {
	core.BaseNode
	eval func(A) R
}

var _ core.FunctionNode = (*Unary[float64, float64])(nil)

// Exec reads a and writes result.
func (n *Unary[A, R]) Exec() error {
	a, err := core.ReadInput[A](n, "a")
	if err != nil {
		return err
	}
	return n.Write("result", n.eval(a))
}

// Binary is a function node computing result = eval(a, b).
type Binary[A, R any] struct {
	core.BaseNode
	eval func(A, A) R
}

var _ core.FunctionNode = (*Binary[float64, float64])(nil)

// Exec reads a and b and writes result.
func (n *Binary[A, R]) Exec() error {
	a, err := core.ReadInput[A](n, "a")
	if err != nil {
		return err
	}
	b, err := core.ReadInput[A](n, "b")
	if err != nil {
		return err
	}
	return n.Write("result", n.eval(a, b))
}

func unary[A, R any](desc core.Description, in, out string, eval func(A) R) registry.NodeDefinition {
	return define(desc, nil, func(desc core.Description, _ registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
		return &Unary[A, R]{
			BaseNode: core.NewBaseNode(id, desc, core.NodeTypeFunction,
				[]*core.Socket{core.NewSocket(in, "a")},
				[]*core.Socket{core.NewSocket(out, "result")},
				cfg),
			eval: eval,
		}, nil
	})
}

func binary[A, R any](desc core.Description, in, out string, eval func(A, A) R) registry.NodeDefinition {
	return define(desc, nil, func(desc core.Description, _ registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
		return &Binary[A, R]{
			BaseNode: core.NewBaseNode(id, desc, core.NodeTypeFunction,
				[]*core.Socket{core.NewSocket(in, "a"), core.NewSocket(in, "b")},
				[]*core.Socket{core.NewSocket(out, "result")},
				cfg),
			eval: eval,
		}, nil
	})
}

// Now is a function node reporting the wall clock in seconds since the
// Unix epoch.
type Now struct {
	core.BaseNode
	now func() time.Time
}

var _ core.FunctionNode = (*Now)(nil)

// Exec writes the current time.
func (n *Now) Exec() error {
	return n.Write("secondsSinceEpoch", float64(n.now().UnixMilli())/1000)
}

func mathDesc(typeName, label string, aliases ...string) core.Description {
	return core.Description{TypeName: typeName, OtherTypeNames: aliases, Category: "Logic", Label: label}
}

func functionDefinitions() []registry.NodeDefinition {
	return []registry.NodeDefinition{
		unary(mathDesc("math/constant/float", "Float", "math/float"), "float", "float",
			func(a float64) float64 { return a }),
		binary(mathDesc("math/add/float", "+"), "float", "float",
			func(a, b float64) float64 { return a + b }),
		binary(mathDesc("math/subtract/float", "-"), "float", "float",
			func(a, b float64) float64 { return a - b }),
		binary(mathDesc("math/multiply/float", "×"), "float", "float",
			func(a, b float64) float64 { return a * b }),
		binary(mathDesc("math/greaterThan/float", ">"), "float", "boolean",
			func(a, b float64) bool { return a > b }),
		unary(mathDesc("math/toFloat/integer", "To Float"), "integer", "float",
			func(a int64) float64 { return float64(a) }),
		unary(mathDesc("logic/not/boolean", "¬"), "boolean", "boolean",
			func(a bool) bool { return !a }),
		binary(mathDesc("logic/and/boolean", "∧"), "boolean", "boolean",
			func(a, b bool) bool { return a && b }),
		NowDefinition(),
	}
}

// NowDefinition describes time/now.
func NowDefinition() registry.NodeDefinition {
	desc := core.Description{
		TypeName: "time/now",
		Category: "Time",
		Label:    "Now",
	}
	return define(desc, nil, func(desc core.Description, _ registry.Dependencies, id string, cfg core.Configuration) (core.Node, error) {
		return &Now{
			BaseNode: core.NewBaseNode(id, desc, core.NodeTypeFunction,
				nil,
				[]*core.Socket{core.NewSocket("float", "secondsSinceEpoch")},
				cfg),
			now: time.Now,
		}, nil
	})
}
