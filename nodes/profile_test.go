package nodes

import (
	"testing"

	"github.com/petal-labs/behaveflow/core"
	"github.com/petal-labs/behaveflow/registry"
)

func TestRegisterCoreProfile(t *testing.T) {
	r := registry.New()
	RegisterCoreProfile(r)

	if err := r.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	want := map[string]core.NodeType{
		"lifecycle/onStart": core.NodeTypeEvent,
		"lifecycle/onTick":  core.NodeTypeEvent,
		"lifecycle/onEnd":   core.NodeTypeEvent,
		"flow/sequence":     core.NodeTypeFlow,
		"flow/waitAll":      core.NodeTypeFlow,
		"flow/forLoop":      core.NodeTypeFlow,
		"debug/log":         core.NodeTypeFlow,
		"time/delay":        core.NodeTypeAsync,
		"flow/delay":        core.NodeTypeAsync,
		"flow/debounce":     core.NodeTypeAsync,
		"math/add/float":    core.NodeTypeFunction,
		"math/float":        core.NodeTypeFunction,
		"logic/not/boolean": core.NodeTypeFunction,
		"time/now":          core.NodeTypeFunction,
	}
	for typeName, nodeType := range want {
		n, err := r.Create(registry.Dependencies{}, typeName, "n", nil)
		if err != nil {
			t.Errorf("Create(%s) error = %v", typeName, err)
			continue
		}
		if n.Type() != nodeType {
			t.Errorf("%s: Type() = %s, want %s", typeName, n.Type(), nodeType)
		}
	}
}

func TestCoreProfile_Defaults(t *testing.T) {
	r := registry.New()
	RegisterCoreProfile(r)

	delay, err := r.Create(registry.Dependencies{}, "time/delay", "d", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := inputValue(t, delay, "duration"); got != 1.0 {
		t.Errorf("delay duration = %v, want 1", got)
	}

	seq, err := r.Create(registry.Dependencies{}, "flow/sequence", "s", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(seq.Outputs()); got != 3 {
		t.Errorf("sequence outputs = %d, want 3", got)
	}

	wait, err := r.Create(registry.Dependencies{}, "flow/waitAll", "w", core.Configuration{"numInputs": 5.0})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(wait.Inputs()); got != 7 {
		t.Errorf("waitAll inputs = %d, want 7", got)
	}
}

func inputValue(t *testing.T, n core.Node, name string) any {
	t.Helper()
	s, err := core.FindSocket(n.Inputs(), name)
	if err != nil {
		t.Fatal(err)
	}
	return s.Value
}
