package patchvm

import "testing"

func TestCallPatch_ArgsAndResultPaths(t *testing.T) {
	patch := mustCompile(t, `[
		{
			"op":"ctrl/call-patch",
			"args":{"/x":5},
			"args-paths":{"/y":"/number2"},
			"patch":[
				{"op":"number/add","path":"/x","value-path":"/y"}
			],
			"result-paths":{"/x":"/sum"}
		}
	]`)
	doc := map[string]any{"number2": NewNumberFromInt(37)}
	out := mustApply(t, patch, doc)
	if got := numberAt(t, out, "/sum"); got != "42" {
		t.Errorf("/sum = %s, want 42", got)
	}
}

func TestApplyPatch_ScopedToPath(t *testing.T) {
	patch := mustCompile(t, `[
		{
			"op":"ctrl/apply-patch",
			"path":"/nested",
			"patch":[
				{"op":"add","path":"/a","value":1}
			]
		}
	]`)
	out := mustApply(t, patch, map[string]any{"nested": map[string]any{}})
	if got := numberAt(t, out, "/nested/a"); got != "1" {
		t.Errorf("/nested/a = %s, want 1", got)
	}
}

func TestForLoop_PreExistingCounterIsRestoredAfterward(t *testing.T) {
	patch := mustCompile(t, `[
		{
			"op":"ctrl/for-loop",
			"path":"",
			"counter-path":"/i",
			"start-value":0,
			"stop-value":2,
			"patch":[
				{"op":"number/add","path":"/total","value-path":"/i"}
			]
		}
	]`)
	doc := map[string]any{
		"i":     NewNumberFromInt(999),
		"total": NewNumberFromInt(0),
	}
	out := mustApply(t, patch, doc)
	if got := numberAt(t, out, "/i"); got != "999" {
		t.Errorf("/i = %s, want restored 999", got)
	}
	if got := numberAt(t, out, "/total"); got != "3" {
		t.Errorf("/total = %s, want 3", got)
	}
}

func TestForLoop_StartGreaterThanStopDoesNotRun(t *testing.T) {
	patch := mustCompile(t, `[
		{
			"op":"ctrl/for-loop",
			"path":"",
			"start-value":5,
			"stop-value":1,
			"patch":[
				{"op":"number/add","path":"/hits","value":1}
			]
		}
	]`)
	out := mustApply(t, patch, map[string]any{"hits": NewNumberFromInt(0)})
	if got := numberAt(t, out, "/hits"); got != "0" {
		t.Errorf("/hits = %s, want 0 (loop body should not run)", got)
	}
}
