// Package scriptruntime hosts dynamically embedded tool scripts.
//
// Scripts are Go source interpreted by yaegi. A script declares, in package
// main, a function named after the tool. Its first parameter receives the
// execution context as a JSON string; the remaining parameters are the tool's
// arguments:
//
//	package main
//
//	func multiply(executionParams string, a float64, b float64) float64 {
//		return a * b
//	}
//
// Each embedded script is compiled into its own Unit (one interpreter per
// script), so replacing or unbinding a tool never disturbs another. The
// Runtime keeps the namespace of bound units and evaluates ad hoc scripts
// that call any registered tool by name.
//
// Scripts are not sandboxed: the whole standard library is available.
package scriptruntime
