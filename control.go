package patchvm

import (
	"strings"

	"github.com/agentflare-ai/go-patchvm/pointer"
)

// registerControlOps wires the six control operators (§4.E) into the
// opcode table. Unlike the other families, several of these recompile
// and recursively Apply a nested CompiledPatch, so they live in their
// own file alongside the scope-view helper they share.
func registerControlOps(t map[string]opFunc) {
	t["ctrl/cond-apply-patch"] = opCondApplyPatch
	t["ctrl/cond-apply-patch-op"] = opCondApplyPatchOp
	t["ctrl/while-loop"] = opWhileLoop
	t["ctrl/for-loop"] = opForLoop
	t["ctrl/apply-patch"] = opApplyPatch
	t["ctrl/apply-patch-op"] = opApplyPatchOp
	t["ctrl/call-patch"] = opCallPatch
	t["ctrl/call-func"] = opCallFunc
}

// runScoped reads the sub-value addressed by scopePath, runs fn against
// it as its own root document, and splices the (possibly rebuilt, if fn
// inserted/removed array elements) result back into doc at scopePath.
// This is how the VM honors "scoped sub-views are borrowings into the
// same document" (§5) despite Go slices needing copy-on-write splicing
// that a reference-counted host language's mutable containers would not.
func runScoped(doc any, scopePath pointer.Pointer, fn func(scopeDoc any) (any, error)) (any, error) {
	scopeVal, err := scopePath.Get(doc)
	if err != nil {
		return nil, err
	}
	newScopeVal, err := fn(scopeVal)
	if err != nil {
		return nil, err
	}
	return pointer.Set(doc, scopePath, newScopeVal)
}

func wrapSingleOp(raw any) any {
	return []any{raw}
}

// ---- Conditional apply (§4.E.1/4.E.2) ----

func opCondApplyPatch(ctx *execContext, fields map[string]any, doc any) (any, error) {
	return condApply(ctx, fields, doc, "true-patch", "false-patch", false)
}

func opCondApplyPatchOp(ctx *execContext, fields map[string]any, doc any) (any, error) {
	return condApply(ctx, fields, doc, "true-patch-op", "false-patch-op", true)
}

func condApply(ctx *execContext, fields map[string]any, doc any, trueField, falseField string, singleOp bool) (any, error) {
	path, err := requirePath(fields)
	if err != nil {
		return nil, err
	}
	check, err := ResolveOperand("check", fields, doc, false)
	if err != nil {
		return nil, err
	}
	cond, err := EnsureBool(check)
	if err != nil {
		return nil, err
	}
	field := falseField
	if cond {
		field = trueField
	}
	patchVal, err := ResolveOperand(field, fields, doc, true)
	if err != nil {
		return nil, err
	}
	if IsMissing(patchVal) {
		return doc, nil
	}
	if singleOp {
		patchVal = wrapSingleOp(patchVal)
	}
	compiled, err := compileSubPatch(patchVal, ctx.opts)
	if err != nil {
		return nil, err
	}
	return runScoped(doc, path, func(scopeDoc any) (any, error) {
		return compiled.Apply(scopeDoc)
	})
}

// ---- While-loop (§4.E.3) ----

// opWhileLoop runs the body once unconditionally, then continues while
// the value at check-path (relative to path's scope) is true. This
// body-before-check ordering matches the examples' "populate check
// flags" idiom and must not be normalized into a standard pre-test loop.
func opWhileLoop(ctx *execContext, fields map[string]any, doc any) (any, error) {
	path, err := requirePath(fields)
	if err != nil {
		return nil, err
	}
	checkPath, err := ResolvePointerField("check-path", fields)
	if err != nil {
		return nil, err
	}
	localCheckPath, err := checkPath.RelativeTo(path)
	if err != nil {
		return nil, err
	}
	patchVal, err := ResolveOperand("patch", fields, doc, false)
	if err != nil {
		return nil, err
	}
	compiled, err := compileSubPatch(patchVal, ctx.opts)
	if err != nil {
		return nil, err
	}
	return runScoped(doc, path, func(scopeDoc any) (any, error) {
		scopeDoc, err := compiled.Apply(scopeDoc)
		if err != nil {
			return nil, err
		}
		for {
			checkRaw, err := localCheckPath.Get(scopeDoc)
			if err != nil {
				return nil, err
			}
			cond, err := EnsureBool(checkRaw)
			if err != nil {
				return nil, err
			}
			if !cond {
				return scopeDoc, nil
			}
			scopeDoc, err = compiled.Apply(scopeDoc)
			if err != nil {
				return nil, err
			}
		}
	})
}

// ---- For-loop (§4.E.4) ----

// opForLoop iterates counter over [start, stop] inclusive, running the
// body each time. If counter-path names a slot inside the scope, it is
// written (via remove-then-add, so a pre-existing array element is
// replaced rather than shifted) before every iteration; on exit the
// slot is restored to its pre-loop value if it pre-existed, or removed
// entirely if it did not — computed against the scope view per the
// resolved Open Question in DESIGN.md, not the outer document.
func opForLoop(ctx *execContext, fields map[string]any, doc any) (any, error) {
	path, err := requirePath(fields)
	if err != nil {
		return nil, err
	}
	counterPath, hasCounter, err := ResolveOptionalPointerField("counter-path", fields)
	if err != nil {
		return nil, err
	}
	var localCounterPath pointer.Pointer
	if hasCounter {
		localCounterPath, err = counterPath.RelativeTo(path)
		if err != nil {
			return nil, err
		}
	}

	startRaw, err := ResolveOperand("start-value", fields, doc, false)
	if err != nil {
		return nil, err
	}
	stopRaw, err := ResolveOperand("stop-value", fields, doc, false)
	if err != nil {
		return nil, err
	}
	incRaw, err := ResolveOperand("increment", fields, doc, true)
	if err != nil {
		return nil, err
	}
	start, err := Int64(startRaw)
	if err != nil {
		return nil, err
	}
	stop, err := Int64(stopRaw)
	if err != nil {
		return nil, err
	}
	increment := int64(1)
	if !IsMissing(incRaw) {
		increment, err = Int64(incRaw)
		if err != nil {
			return nil, err
		}
	}
	if increment == 0 {
		return nil, &ValueError{Reason: "for-loop increment must be non-zero"}
	}

	patchVal, err := ResolveOperand("patch", fields, doc, false)
	if err != nil {
		return nil, err
	}
	compiled, err := compileSubPatch(patchVal, ctx.opts)
	if err != nil {
		return nil, err
	}

	return runScoped(doc, path, func(scopeDoc any) (any, error) {
		var counterBackup bool
		var origCounterValue any
		if hasCounter {
			if localCounterPath.Exists(scopeDoc) {
				counterBackup = true
				origCounterValue, err = localCounterPath.Get(scopeDoc)
				if err != nil {
					return nil, err
				}
				origCounterValue, err = DeepClone(origCounterValue)
				if err != nil {
					return nil, err
				}
			}
		}

		step := func(counter int64) error {
			if !hasCounter {
				return nil
			}
			if localCounterPath.Exists(scopeDoc) {
				scopeDoc, err = pointer.Remove(scopeDoc, localCounterPath)
				if err != nil {
					return err
				}
			}
			scopeDoc, err = pointer.Add(scopeDoc, localCounterPath, NewNumberFromInt(counter))
			return err
		}

		if increment > 0 {
			for c := start; c <= stop; c += increment {
				if err := step(c); err != nil {
					return nil, err
				}
				scopeDoc, err = compiled.Apply(scopeDoc)
				if err != nil {
					return nil, err
				}
			}
		} else {
			for c := start; c >= stop; c += increment {
				if err := step(c); err != nil {
					return nil, err
				}
				scopeDoc, err = compiled.Apply(scopeDoc)
				if err != nil {
					return nil, err
				}
			}
		}

		if hasCounter {
			if localCounterPath.Exists(scopeDoc) {
				scopeDoc, err = pointer.Remove(scopeDoc, localCounterPath)
				if err != nil {
					return nil, err
				}
			}
			if counterBackup {
				scopeDoc, err = pointer.Add(scopeDoc, localCounterPath, origCounterValue)
				if err != nil {
					return nil, err
				}
			}
		}
		return scopeDoc, nil
	})
}

// ---- Unconditional apply (§4.E.4 "apply-sub-patch") ----

func opApplyPatch(ctx *execContext, fields map[string]any, doc any) (any, error) {
	return applyPatch(ctx, fields, doc, "patch", false)
}

func opApplyPatchOp(ctx *execContext, fields map[string]any, doc any) (any, error) {
	return applyPatch(ctx, fields, doc, "patch-op", true)
}

func applyPatch(ctx *execContext, fields map[string]any, doc any, field string, singleOp bool) (any, error) {
	path, err := requirePath(fields)
	if err != nil {
		return nil, err
	}
	patchVal, err := ResolveOperand(field, fields, doc, false)
	if err != nil {
		return nil, err
	}
	if singleOp {
		patchVal = wrapSingleOp(patchVal)
	}
	compiled, err := compileSubPatch(patchVal, ctx.opts)
	if err != nil {
		return nil, err
	}
	return runScoped(doc, path, func(scopeDoc any) (any, error) {
		return compiled.Apply(scopeDoc)
	})
}

// ---- Call-patch: named-args call frame (§4.E.5) ----

func opCallPatch(ctx *execContext, fields map[string]any, doc any) (any, error) {
	frame := any(map[string]any{})
	var err error

	if rawArgs, ok := fields["args"]; ok {
		args, ok := rawArgs.(map[string]any)
		if !ok {
			return nil, &TypeError{Context: "call-patch args", Want: "object", Got: rawArgs}
		}
		for localText, value := range args {
			localPath, err2 := pointer.Parse(localText)
			if err2 != nil {
				return nil, err2
			}
			cloned, err2 := DeepClone(value)
			if err2 != nil {
				return nil, err2
			}
			frame, err = pointer.Add(frame, localPath, cloned)
			if err != nil {
				return nil, err
			}
		}
	}

	if rawArgsPaths, ok := fields["args-paths"]; ok {
		argsPaths, ok := rawArgsPaths.(map[string]any)
		if !ok {
			return nil, &TypeError{Context: "call-patch args-paths", Want: "object", Got: rawArgsPaths}
		}
		for localText, sourceRaw := range argsPaths {
			localPath, err2 := pointer.Parse(localText)
			if err2 != nil {
				return nil, err2
			}
			sourceText, err2 := EnsureString(sourceRaw)
			if err2 != nil {
				return nil, err2
			}
			sourcePath, err2 := pointer.Parse(sourceText)
			if err2 != nil {
				return nil, err2
			}
			value, err2 := sourcePath.Get(doc)
			if err2 != nil {
				return nil, err2
			}
			value, err2 = DeepClone(value)
			if err2 != nil {
				return nil, err2
			}
			frame, err = pointer.Add(frame, localPath, value)
			if err != nil {
				return nil, err
			}
		}
	}

	patchVal, err := ResolveOperand("patch", fields, doc, false)
	if err != nil {
		return nil, err
	}
	compiled, err := compileSubPatch(patchVal, ctx.opts)
	if err != nil {
		return nil, err
	}
	frame, err = compiled.Apply(frame)
	if err != nil {
		return nil, err
	}

	if rawResultPaths, ok := fields["result-paths"]; ok {
		resultPaths, ok := rawResultPaths.(map[string]any)
		if !ok {
			return nil, &TypeError{Context: "call-patch result-paths", Want: "object", Got: rawResultPaths}
		}
		for localText, destRaw := range resultPaths {
			localPath, err2 := pointer.Parse(localText)
			if err2 != nil {
				return nil, err2
			}
			destText, err2 := EnsureString(destRaw)
			if err2 != nil {
				return nil, err2
			}
			destPath, err2 := pointer.Parse(destText)
			if err2 != nil {
				return nil, err2
			}
			value, err2 := localPath.Get(frame)
			if err2 != nil {
				return nil, err2
			}
			value, err2 = DeepClone(value)
			if err2 != nil {
				return nil, err2
			}
			doc, err = pointer.Add(doc, destPath, value)
			if err != nil {
				return nil, err
			}
		}
	}

	return doc, nil
}

// ---- Call-func: convention-based input marshaling (§4.E.6) ----

var callFuncReservedFields = map[string]bool{
	"op": true, "patch": true, "patch-path": true, "out-path": true,
}

func opCallFunc(ctx *execContext, fields map[string]any, doc any) (any, error) {
	args := make(map[string]any)
	for k, v := range fields {
		if callFuncReservedFields[k] {
			continue
		}
		args[k] = v
	}

	inp, err := prepareFuncInput(args, doc)
	if err != nil {
		return nil, err
	}

	frame := map[string]any{"inp": inp}
	if reqVal, ok := inp["req"]; ok {
		delete(inp, "req")
		frame["req"] = reqVal
	} else {
		frame["req"] = map[string]any{}
	}

	patchVal, err := ResolveOperand("patch", fields, doc, false)
	if err != nil {
		return nil, err
	}
	compiled, err := compileSubPatch(patchVal, ctx.opts)
	if err != nil {
		return nil, err
	}
	newFrame, err := compiled.Apply(any(frame))
	if err != nil {
		return nil, err
	}
	frameMap, ok := newFrame.(map[string]any)
	if !ok {
		return nil, &TypeError{Context: "call-func frame", Want: "object", Got: newFrame}
	}
	out, ok := frameMap["out"]
	if !ok {
		return nil, &MissingFieldError{Field: "out"}
	}
	outPath, err := ResolvePointerField("out-path", fields)
	if err != nil {
		return nil, err
	}
	return pointer.Add(doc, outPath, out)
}

// prepareFuncInput binds args into a fresh frame input object, stripping
// the "-path" suffix and dereferencing against doc wherever a field name
// carries it, and recursing into any Object-typed bound value so nested
// arguments get the same treatment.
func prepareFuncInput(args map[string]any, doc any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for key, raw := range args {
		modKey := key
		var resolved any
		if strings.HasSuffix(key, "-path") {
			text, err := EnsureString(raw)
			if err != nil {
				return nil, err
			}
			p, err := pointer.Parse(text)
			if err != nil {
				return nil, err
			}
			v, err := p.Get(doc)
			if err != nil {
				return nil, err
			}
			v, err = DeepClone(v)
			if err != nil {
				return nil, err
			}
			resolved = v
			modKey = strings.TrimSuffix(key, "-path")
		} else {
			v, err := DeepClone(raw)
			if err != nil {
				return nil, err
			}
			resolved = v
		}
		if nested, ok := resolved.(map[string]any); ok {
			nestedResolved, err := prepareFuncInput(nested, doc)
			if err != nil {
				return nil, err
			}
			out[modKey] = nestedResolved
		} else {
			out[modKey] = resolved
		}
	}
	return out, nil
}
