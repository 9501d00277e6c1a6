// Package lockmanager implements multi-granularity locking over tables and
// rows: five lock modes (IS, IX, S, SIX, X), FIFO per-object wait queues,
// and a background deadlock detector over the waits-for graph.
package lockmanager

import "fmt"

// Mode is one of the five multi-granularity lock modes.
type Mode uint8

const (
	IntentionShared Mode = iota
	IntentionExclusive
	Shared
	SharedIntentionExclusive
	Exclusive
)

func (m Mode) String() string {
	switch m {
	case IntentionShared:
		return "INTENTION_SHARED"
	case IntentionExclusive:
		return "INTENTION_EXCLUSIVE"
	case Shared:
		return "SHARED"
	case SharedIntentionExclusive:
		return "SHARED_INTENTION_EXCLUSIVE"
	case Exclusive:
		return "EXCLUSIVE"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// compatMatrix[a][b] reports whether a held lock in mode a and a requested
// lock in mode b can coexist.
var compatMatrix = [5][5]bool{
	IntentionShared:          {true, true, true, true, false},
	IntentionExclusive:       {true, true, false, false, false},
	Shared:                   {true, false, true, false, false},
	SharedIntentionExclusive: {true, false, false, false, false},
	Exclusive:                {false, false, false, false, false},
}

// Compatible reports whether holding m does not block a concurrent request
// for other.
func (m Mode) Compatible(other Mode) bool {
	return compatMatrix[m][other]
}

// upgradeMatrix[from][to] reports whether upgrading a held lock from mode
// "from" directly to mode "to" is a valid upgrade step.
var upgradeMatrix = [5][5]bool{
	IntentionShared:          {false, true, true, true, true},
	IntentionExclusive:       {false, false, false, true, true},
	Shared:                   {false, false, false, true, true},
	SharedIntentionExclusive: {false, false, false, false, true},
	Exclusive:                {false, false, false, false, false},
}

// CanUpgradeTo reports whether from -> to is a permitted upgrade step.
func (m Mode) CanUpgradeTo(to Mode) bool {
	return upgradeMatrix[m][to]
}

// Combine returns the strongest mode implied by holding both m and other
// simultaneously (used when a txn re-requests a lock it already holds in a
// different mode, outside of an explicit Upgrade call).
func (m Mode) Combine(other Mode) Mode {
	if m == other {
		return m
	}
	strength := func(x Mode) int {
		switch x {
		case IntentionShared:
			return 0
		case IntentionExclusive, Shared:
			return 1
		case SharedIntentionExclusive:
			return 2
		case Exclusive:
			return 3
		}
		return -1
	}
	if (m == IntentionExclusive && other == Shared) || (m == Shared && other == IntentionExclusive) {
		return SharedIntentionExclusive
	}
	if strength(m) >= strength(other) {
		return m
	}
	return other
}

// IsIntention reports whether m is one of the three table-level intention
// modes (IS, IX, SIX) that cannot be taken directly on a row.
func (m Mode) IsIntention() bool {
	return m == IntentionShared || m == IntentionExclusive || m == SharedIntentionExclusive
}
