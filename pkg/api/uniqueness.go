package api

// CheckStatus is the state of a remote uniqueness check as exposed to views.
type CheckStatus string

const (
	CheckIdle        CheckStatus = "idle"
	CheckChecking    CheckStatus = "checking"
	CheckAvailable   CheckStatus = "available"
	CheckUnavailable CheckStatus = "unavailable"
	CheckError       CheckStatus = "error"
)

// Resolved reports whether the status is a network answer.
func (s CheckStatus) Resolved() bool {
	return s == CheckAvailable || s == CheckUnavailable || s == CheckError
}

// UniquenessCheckState is the latest check for one field.
//
// Token increases monotonically per field; a response carrying any token
// but the latest is discarded.
type UniquenessCheckState struct {
	Field  string
	Value  string
	Token  uint64
	Status CheckStatus
}
