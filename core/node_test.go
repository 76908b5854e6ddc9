package core

import (
	"errors"
	"testing"
)

type testFlowNode struct {
	BaseNode
}

func (n *testFlowNode) Triggered(Fiber, string) error { return nil }

type testFunctionNode struct {
	BaseNode
}

func (n *testFunctionNode) Exec() error { return nil }

func TestValidateNode(t *testing.T) {
	desc := Description{TypeName: "test/node"}
	tests := []struct {
		name    string
		node    Node
		wantErr bool
	}{
		{
			name: "flow node with flow input",
			node: &testFlowNode{NewBaseNode("a", desc, NodeTypeFlow,
				[]*Socket{NewFlowSocket("flow")}, []*Socket{NewFlowSocket("flow")}, nil)},
		},
		{
			name: "flow node without flow input",
			node: &testFlowNode{NewBaseNode("a", desc, NodeTypeFlow,
				nil, []*Socket{NewFlowSocket("flow")}, nil)},
			wantErr: true,
		},
		{
			name: "function node",
			node: &testFunctionNode{NewBaseNode("f", desc, NodeTypeFunction,
				[]*Socket{NewSocket("float", "a")}, []*Socket{NewSocket("float", "result")}, nil)},
		},
		{
			name: "function node with flow socket",
			node: &testFunctionNode{NewBaseNode("f", desc, NodeTypeFunction,
				[]*Socket{NewFlowSocket("flow")}, nil, nil)},
			wantErr: true,
		},
		{
			name: "tag does not match implementation",
			node: &testFunctionNode{NewBaseNode("f", desc, NodeTypeEvent,
				nil, []*Socket{NewFlowSocket("flow")}, nil)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNode(tt.node)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateNode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidNode) {
				t.Errorf("ValidateNode() error = %v, want ErrInvalidNode", err)
			}
		})
	}
}

func TestReadInput_Coercion(t *testing.T) {
	n := &testFunctionNode{NewBaseNode("f", Description{}, NodeTypeFunction,
		[]*Socket{
			NewSocket("integer", "i").WithDefault(int64(4)),
			NewSocket("float", "f").WithDefault(2.0),
			NewSocket("string", "s").WithDefault("x"),
		}, nil, nil)}

	f, err := ReadInput[float64](n, "i")
	if err != nil || f != 4 {
		t.Errorf("ReadInput[float64](i) = %v, %v, want 4", f, err)
	}
	i, err := ReadInput[int64](n, "f")
	if err != nil || i != 2 {
		t.Errorf("ReadInput[int64](f) = %v, %v, want 2", i, err)
	}
	if _, err := ReadInput[float64](n, "s"); !errors.Is(err, ErrSocketType) {
		t.Errorf("ReadInput[float64](s) error = %v, want ErrSocketType", err)
	}
	if _, err := ReadInput[float64](n, "missing"); !errors.Is(err, ErrSocketNotFound) {
		t.Errorf("ReadInput(missing) error = %v, want ErrSocketNotFound", err)
	}
}

func TestDecodeConfig(t *testing.T) {
	var cfg struct {
		NumInputs int `json:"numInputs"`
	}
	if err := DecodeConfig(Configuration{"numInputs": float64(4)}, &cfg); err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	if cfg.NumInputs != 4 {
		t.Errorf("NumInputs = %d, want 4", cfg.NumInputs)
	}
}
