package lockmanager

import "errors"

var (
	// ErrAttemptedIntentionLockOnRow is returned when a caller requests an
	// intention mode (IS/IX/SIX) directly on a row; intention locks only
	// make sense at table granularity.
	ErrAttemptedIntentionLockOnRow = errors.New("lockmanager: attempted intention lock on row")

	// ErrTableLockNotPresent is returned when a row lock is requested
	// without the corresponding table-level intention lock already held.
	ErrTableLockNotPresent = errors.New("lockmanager: table lock not present")

	// ErrAttemptedUnlockButNoLockHeld is returned when Unlock is called for
	// an object the transaction does not hold a lock on.
	ErrAttemptedUnlockButNoLockHeld = errors.New("lockmanager: attempted unlock but no lock held")

	// ErrTableUnlockedBeforeUnlockingRows is returned when UnlockTable is
	// called while the transaction still holds row locks under that table.
	ErrTableUnlockedBeforeUnlockingRows = errors.New("lockmanager: table unlocked before unlocking rows")

	// ErrUpgradeConflict is returned when another transaction is already
	// upgrading the same object.
	ErrUpgradeConflict = errors.New("lockmanager: upgrade conflict")

	// ErrIncompatibleUpgrade is returned when the requested upgrade is not
	// a valid step from the currently held mode.
	ErrIncompatibleUpgrade = errors.New("lockmanager: incompatible upgrade")

	// ErrDeadlock is returned to a transaction chosen as a deadlock victim.
	ErrDeadlock = errors.New("lockmanager: deadlock detected")

	// ErrTransactionAborted is returned when a lock is requested by a
	// transaction already in the aborted state.
	ErrTransactionAborted = errors.New("lockmanager: transaction already aborted")

	// ErrLockOnShrinking is returned when a transaction requests a lock its
	// isolation level does not permit while SHRINKING.
	ErrLockOnShrinking = errors.New("lockmanager: lock requested on shrinking transaction")

	// ErrLockSharedOnReadUncommitted is returned when a READ_UNCOMMITTED
	// transaction requests a shared-family lock (S/IS/SIX), which its
	// isolation level never needs and never permits.
	ErrLockSharedOnReadUncommitted = errors.New("lockmanager: shared lock requested under read uncommitted")
)
