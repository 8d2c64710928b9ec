package patchvm

import (
	"testing"

	"github.com/agentflare-ai/go-patchvm/pointer"
)

func mustCompile(t *testing.T, jsonText string) *CompiledPatch {
	t.Helper()
	ops, err := ParseOperationDescriptors(jsonText)
	if err != nil {
		t.Fatalf("parse ops: %v", err)
	}
	compiled, err := Compile(ops)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return compiled
}

func mustApply(t *testing.T, compiled *CompiledPatch, doc Document) Document {
	t.Helper()
	out, err := compiled.Apply(doc)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	return out
}

func numberAt(t *testing.T, doc Document, path string) string {
	t.Helper()
	p := mustParsePointer(t, path)
	v, err := p.Get(doc)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	n, err := EnsureNumber(v)
	if err != nil {
		t.Fatalf("%s not a number: %v", path, err)
	}
	return n.Text('f')
}

// TestScenarioSequencedArithmeticAndTest ports spec §8 scenario 1.
func TestScenarioSequencedArithmeticAndTest(t *testing.T) {
	patch := mustCompile(t, `[
		{"op":"add","path":"/a","value":10},
		{"op":"add","path":"/b","value":40},
		{"op":"number/add","path":"/a","value":20},
		{"op":"number/add","path":"/b","value-path":"/a"},
		{"op":"test","path":"/a","value":30},
		{"op":"test","path":"/b","value":70},
		{"op":"number/mul","path":"/a","value":5},
		{"op":"test","path":"/a","value":150},
		{"op":"number/mul","path":"/b","value-path":"/a"},
		{"op":"test","path":"/b","value":10500}
	]`)
	doc := mustApply(t, patch, map[string]any{})
	if got := numberAt(t, doc, "/a"); got != "150" {
		t.Errorf("/a = %s, want 150", got)
	}
	if got := numberAt(t, doc, "/b"); got != "10500" {
		t.Errorf("/b = %s, want 10500", got)
	}
}

// TestScenarioConditionalBranchSelection ports spec §8 scenario 2.
func TestScenarioConditionalBranchSelection(t *testing.T) {
	patch := mustCompile(t, `[
		{
			"op":"ctrl/cond-apply-patch-op",
			"path":"",
			"check-path":"/bool-value",
			"true-patch-op":{"op":"move","from":"/b","path":"/x"},
			"false-patch-op":{"op":"move","from":"/a","path":"/x"}
		}
	]`)

	doc := map[string]any{
		"bool-value": true,
		"a":          NewNumberFromInt(1),
		"b":          NewNumberFromInt(2),
	}
	out := mustApply(t, patch, doc)
	if got := numberAt(t, out, "/x"); got != "2" {
		t.Errorf("/x = %s, want 2", got)
	}

	doc2 := map[string]any{
		"bool-value": false,
		"a":          NewNumberFromInt(1),
		"b":          NewNumberFromInt(2),
	}
	out2 := mustApply(t, patch, doc2)
	if got := numberAt(t, out2, "/x"); got != "1" {
		t.Errorf("/x = %s, want 1", got)
	}
}

// TestScenarioForLoopAccumulation ports spec §8 scenario 3.
func TestScenarioForLoopAccumulation(t *testing.T) {
	patch := mustCompile(t, `[
		{"op":"add","path":"/val","value":0},
		{
			"op":"ctrl/for-loop",
			"path":"",
			"counter-path":"/i",
			"start-value":0,
			"stop-value":10,
			"patch":[
				{"op":"number/add","path":"/val","value":5}
			]
		}
	]`)
	doc := mustApply(t, patch, map[string]any{})
	if got := numberAt(t, doc, "/val"); got != "55" {
		t.Errorf("/val = %s, want 55", got)
	}
	p := mustParsePointer(t, "/i")
	if p.Exists(doc) {
		t.Errorf("/i should not exist after the loop")
	}
}

// TestScenarioPerElementArrayTransform ports spec §8 scenario 4.
func TestScenarioPerElementArrayTransform(t *testing.T) {
	patch := mustCompile(t, `[
		{"op":"array/length","path":"/n","value-path":"/arr"},
		{"op":"number/add","path":"/n","value":-1},
		{"op":"add","path":"/idx","value":["arr",0]},
		{"op":"add","path":"/mul-op","value":{"op":"number/mul","path":"dummy","value":3}},
		{
			"op":"ctrl/for-loop",
			"path":"",
			"counter-path":"/idx/1",
			"start-value":0,
			"stop-value-path":"/n",
			"patch":[
				{"op":"array/join-path","path":"/idx-ptr","value-path":"/idx"},
				{"op":"copy","from":"/idx-ptr","path":"/mul-op/path"},
				{"op":"ctrl/apply-patch-op","path":"","patch-op-path":"/mul-op"}
			]
		}
	]`)
	doc := map[string]any{
		"arr": []any{NewNumberFromInt(1), NewNumberFromInt(2), NewNumberFromInt(3)},
	}
	out := mustApply(t, patch, doc)
	arr, err := EnsureArray(mustGet(t, out, "/arr"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"3", "6", "9"}
	for i, w := range want {
		n, err := EnsureNumber(arr[i])
		if err != nil {
			t.Fatal(err)
		}
		if n.Text('f') != w {
			t.Errorf("/arr/%d = %s, want %s", i, n.Text('f'), w)
		}
	}
}

// TestScenarioWhileLoopPreDecrement ports spec §8 scenario 5.
func TestScenarioWhileLoopPreDecrement(t *testing.T) {
	patch := mustCompile(t, `[
		{
			"op":"ctrl/while-loop",
			"path":"/block-scope",
			"check-path":"/block-scope/check",
			"patch":[
				{"op":"number/add","path":"/counter","value":-1},
				{"op":"number/greater","path":"/check","left-value-path":"/counter","right-value":0}
			]
		}
	]`)
	doc := map[string]any{
		"block-scope": map[string]any{
			"counter": NewNumberFromInt(10),
			"check":   true,
		},
	}
	out := mustApply(t, patch, doc)
	if got := numberAt(t, out, "/block-scope/counter"); got != "0" {
		t.Errorf("/block-scope/counter = %s, want 0", got)
	}
	p := mustParsePointer(t, "/block-scope/check")
	v, err := p.Get(out)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EnsureBool(v)
	if err != nil {
		t.Fatal(err)
	}
	if b {
		t.Errorf("/block-scope/check = true, want false")
	}
}

// TestScenarioFunctionCallWithMixedArgs ports spec §8 scenario 6.
func TestScenarioFunctionCallWithMixedArgs(t *testing.T) {
	patch := mustCompile(t, `[
		{
			"op":"ctrl/call-func",
			"patch-path":"/func",
			"x":5,
			"y-path":"/number2",
			"out-path":"/arith-result"
		}
	]`)
	doc := map[string]any{
		"func": []any{
			map[string]any{"op": "number/add", "path": "/inp/x", "value-path": "/inp/y"},
			map[string]any{"op": "move", "from": "/inp/x", "path": "/out"},
		},
		"number2": NewNumberFromInt(41),
	}
	out := mustApply(t, patch, doc)
	if got := numberAt(t, out, "/arith-result"); got != "46" {
		t.Errorf("/arith-result = %s, want 46", got)
	}
}

func mustParsePointer(t *testing.T, text string) pointer.Pointer {
	t.Helper()
	p, err := pointer.Parse(text)
	if err != nil {
		t.Fatalf("parse pointer %q: %v", text, err)
	}
	return p
}

func mustGet(t *testing.T, doc Document, path string) any {
	t.Helper()
	p := mustParsePointer(t, path)
	v, err := p.Get(doc)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	return v
}
