package domain

import "time"

// ChangeOperation describes a persisted activity operation for a calendar.
type ChangeOperation string

// ChangeOperation values used by the local activity ledger.
const (
	ChangeOperationCreate     ChangeOperation = "create"
	ChangeOperationUpdate     ChangeOperation = "update"
	ChangeOperationShift      ChangeOperation = "shift"
	ChangeOperationSplit      ChangeOperation = "split"
	ChangeOperationUnsplit    ChangeOperation = "unsplit"
	ChangeOperationAddItem    ChangeOperation = "add_item"
	ChangeOperationExceptions ChangeOperation = "exceptions"
	ChangeOperationImport     ChangeOperation = "import"
	ChangeOperationDelete     ChangeOperation = "delete"
)

var validChangeOperations = []ChangeOperation{
	ChangeOperationCreate,
	ChangeOperationUpdate,
	ChangeOperationShift,
	ChangeOperationSplit,
	ChangeOperationUnsplit,
	ChangeOperationAddItem,
	ChangeOperationExceptions,
	ChangeOperationImport,
	ChangeOperationDelete,
}

// ChangeEvent represents a single activity-log entry for one calendar.
type ChangeEvent struct {
	ID         int64
	CalendarID string
	ItemID     string
	Operation  ChangeOperation
	Metadata   map[string]string
	OccurredAt time.Time
}

// IsValidChangeOperation reports whether op is a known ledger operation.
func IsValidChangeOperation(op ChangeOperation) bool {
	for _, candidate := range validChangeOperations {
		if candidate == op {
			return true
		}
	}
	return false
}
