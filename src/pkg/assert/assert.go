// Package assert provides cheap invariant checks used throughout the
// storage core. A failed assertion means a bug in this module, not bad
// input, so it panics rather than returning an error.
package assert

import "fmt"

// Assert panics with a formatted message if cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}

// Never always panics; use it for switch/case arms that must be unreachable.
func Never(format string, args ...any) {
	panic(fmt.Sprintf("unreachable: "+format, args...))
}
