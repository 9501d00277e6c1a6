package lockmanager

import "github.com/Blackdeer1524/reldb/src/pkg/common"

// TableID identifies a table-granularity lockable object.
type TableID = common.OID

// RowID identifies a row-granularity lockable object: a table plus the RID
// of the row within it.
type RowID struct {
	Table TableID
	RID   common.RID
}
