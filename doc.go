// Package patchvm implements a self-referential virtual machine over
// JSON-like documents: programs are JSON Patch sequences (RFC 6902 core
// operations extended with arithmetic, relational, boolean, string/array
// utility, and control-flow operators) applied to a document that can
// itself hold further patch programs. Numbers are exact, bounded-precision
// decimals rather than float64, so repeated arithmetic never drifts.
package patchvm
