package graph

import (
	"bytes"
	"strings"
	"testing"

	"github.com/petal-labs/behaveflow/core"
	"github.com/petal-labs/behaveflow/nodes"
	"github.com/petal-labs/behaveflow/registry"
)

const tickGraph = `{
  "name": "tick-counter",
  "version": "1.0.0",
  "nodes": [
    {
      "id": "tick",
      "type": "lifecycle/onTick",
      "label": "Every tick",
      "metadata": {"positionX": "10"},
      "flows": {"flow": {"nodeId": "branch", "socket": "flow"}}
    },
    {
      "id": "gt",
      "type": "math/greaterThan/float",
      "parameters": {
        "a": {"link": {"nodeId": "tick", "socket": "deltaSeconds"}},
        "b": {"value": 0.5}
      }
    },
    {
      "id": "branch",
      "type": "flow/branch",
      "parameters": {"condition": {"link": {"nodeId": "gt", "socket": "result"}}},
      "flows": {"true": {"nodeId": "log", "socket": "flow"}}
    },
    {
      "id": "log",
      "type": "debug/log",
      "parameters": {"text": {"value": "slow tick"}, "severity": {"value": "warning"}}
    }
  ]
}`

func testRegistry() *registry.Registry {
	r := registry.New()
	nodes.RegisterCoreProfile(r)
	return r
}

func readDoc(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := ReadJSON(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return doc
}

func TestBuild_WiresLinksAndValues(t *testing.T) {
	g, diags := Build(readDoc(t, tickGraph), testRegistry(), registry.Dependencies{})
	if HasErrors(diags) {
		t.Fatalf("Build() diagnostics = %+v", diags)
	}
	if g.Name() != "tick-counter" || g.Len() != 4 {
		t.Fatalf("graph %q has %d nodes", g.Name(), g.Len())
	}

	gt, _ := g.Node("gt")
	a, _ := core.FindSocket(gt.Inputs(), "a")
	if len(a.Links) != 1 || a.Links[0].FromNodeID != "tick" {
		t.Errorf("gt.a links = %v", a.Links)
	}
	b, _ := core.FindSocket(gt.Inputs(), "b")
	if b.Value != 0.5 {
		t.Errorf("gt.b = %v, want 0.5", b.Value)
	}

	tick, _ := g.Node("tick")
	flow, _ := core.FindSocket(tick.Outputs(), "flow")
	if len(flow.Links) != 1 || flow.Links[0].ToNodeID != "branch" {
		t.Errorf("tick.flow links = %v", flow.Links)
	}
	if info := g.Info("tick"); info.Label != "Every tick" {
		t.Errorf("label = %q", info.Label)
	}
}

func TestBuild_Diagnostics(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code string
	}{
		{
			name: "unknown type",
			doc:  `{"nodes":[{"id":"a","type":"nope/nope"}]}`,
			code: CodeUnknownType,
		},
		{
			name: "unknown input",
			doc:  `{"nodes":[{"id":"a","type":"math/add/float","parameters":{"z":{"value":1}}}]}`,
			code: CodeUnknownSocket,
		},
		{
			name: "unknown upstream socket",
			doc: `{"nodes":[
				{"id":"a","type":"math/add/float"},
				{"id":"b","type":"math/add/float","parameters":{"a":{"link":{"nodeId":"a","socket":"nope"}}}}]}`,
			code: CodeUnknownSocket,
		},
		{
			name: "dangling link",
			doc:  `{"nodes":[{"id":"a","type":"math/add/float","parameters":{"a":{"link":{"nodeId":"ghost","socket":"result"}}}}]}`,
			code: CodeDanglingLink,
		},
		{
			name: "value type mismatch",
			doc: `{"nodes":[
				{"id":"a","type":"logic/not/boolean"},
				{"id":"b","type":"math/add/float","parameters":{"a":{"link":{"nodeId":"a","socket":"result"}}}}]}`,
			code: CodeTypeMismatch,
		},
		{
			name: "bad literal",
			doc:  `{"nodes":[{"id":"a","type":"math/toFloat/integer","parameters":{"a":{"value":1.5}}}]}`,
			code: CodeTypeMismatch,
		},
		{
			name: "value outside choices",
			doc:  `{"nodes":[{"id":"a","type":"debug/log","parameters":{"severity":{"value":"loud"}}}]}`,
			code: CodeTypeMismatch,
		},
		{
			name: "multiple flow downlinks",
			doc: `{"nodes":[
				{"id":"s","type":"lifecycle/onStart","flows":{"flow":{"nodeId":"x","socket":"flow"}}},
				{"id":"x","type":"flow/counter"},
				{"id":"y","type":"flow/counter","parameters":{"flow":{"link":{"nodeId":"s","socket":"flow"}}}}]}`,
			code: CodeMultipleDownlinks,
		},
		{
			name: "function cycle",
			doc: `{"nodes":[
				{"id":"a","type":"math/add/float","parameters":{"a":{"link":{"nodeId":"b","socket":"result"}}}},
				{"id":"b","type":"math/add/float","parameters":{"a":{"link":{"nodeId":"a","socket":"result"}}}}]}`,
			code: CodeFunctionCycle,
		},
		{
			name: "duplicate id",
			doc:  `{"nodes":[{"id":"a","type":"time/now"},{"id":"a","type":"time/now"}]}`,
			code: CodeDuplicateNode,
		},
		{
			name: "unsupported version",
			doc:  `{"version":"2.0.0","nodes":[]}`,
			code: CodeVersion,
		},
		{
			name: "invalid configuration",
			doc:  `{"nodes":[{"id":"a","type":"flow/sequence","configuration":{"numOutputs":0}}]}`,
			code: CodeInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, diags := Build(readDoc(t, tt.doc), testRegistry(), registry.Dependencies{})
			if g != nil {
				t.Error("graph returned despite errors")
			}
			if !hasCode(diags, tt.code) {
				t.Errorf("diagnostics = %+v, want code %s", diags, tt.code)
			}
		})
	}
}

func TestBuild_IntegerFeedsFloat(t *testing.T) {
	doc := `{"nodes":[
		{"id":"i","type":"math/toFloat/integer"},
		{"id":"c","type":"flow/counter"},
		{"id":"add","type":"math/add/float","parameters":{"a":{"link":{"nodeId":"c","socket":"count"}}}}]}`
	_, diags := Build(readDoc(t, doc), testRegistry(), registry.Dependencies{})
	if HasErrors(diags) {
		t.Errorf("diagnostics = %+v", Errors(diags))
	}
	if !hasCode(Warnings(diags), CodeUnreachable) {
		t.Errorf("expected unreachable warning for the counter, got %+v", diags)
	}
}

func TestGraph_ConnectErrors(t *testing.T) {
	r := testRegistry()
	g := New("manual")
	a, _ := r.Create(registry.Dependencies{}, "math/add/float", "a", nil)
	if err := g.Add(a); err != nil {
		t.Fatal(err)
	}
	if err := g.Add(a); err == nil {
		t.Error("expected duplicate node error")
	}
	if err := g.Connect("a", "result", "missing", "a"); err == nil {
		t.Error("expected unknown node error")
	}
	if err := g.Connect("a", "result", "a", "nope"); err == nil {
		t.Error("expected unknown socket error")
	}
}

func TestToDocument_RoundTrip(t *testing.T) {
	reg := testRegistry()
	g, diags := Build(readDoc(t, tickGraph), reg, registry.Dependencies{})
	if HasErrors(diags) {
		t.Fatalf("Build() diagnostics = %+v", diags)
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, ToDocument(g, reg)); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	again, diags := Build(readDoc(t, buf.String()), reg, registry.Dependencies{})
	if HasErrors(diags) {
		t.Fatalf("rebuild diagnostics = %+v\n%s", diags, buf.String())
	}
	log, _ := again.Node("log")
	text, _ := core.FindSocket(log.Inputs(), "text")
	if text.Value != "slow tick" {
		t.Errorf("log.text = %v", text.Value)
	}
	branch, _ := again.Node("branch")
	out, _ := core.FindSocket(branch.Outputs(), "true")
	if len(out.Links) != 1 || out.Links[0].ToNodeID != "log" {
		t.Errorf("branch.true links = %v", out.Links)
	}

	doc := ToDocument(again, reg)
	for _, nj := range doc.Nodes {
		if nj.ID != "gt" {
			continue
		}
		if _, ok := nj.Parameters["b"]; !ok {
			t.Error("changed value gt.b was not written")
		}
		if doc.Version == "" {
			t.Error("version not written")
		}
	}
}

func hasCode(diags []Diagnostic, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}
