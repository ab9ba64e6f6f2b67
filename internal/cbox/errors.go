package cbox

import "errors"

// Domain errors for the object runtime.
//
// Each error maps onto a wire status code through StatusOf:
//
//	if errors.Is(err, cbox.ErrObjectNotFound) {
//	    // reply with StatusObjectNotFound
//	}
var (
	// ErrInvalidType is returned when a type ID has no registered factory,
	// or when a write targets an object of a different type.
	ErrInvalidType = errors.New("cbox: invalid type")

	// ErrInvalidDefinition is returned when an object rejects its settings blob.
	ErrInvalidDefinition = errors.New("cbox: invalid definition")

	// ErrOutOfMemory is returned when the container is at capacity.
	ErrOutOfMemory = errors.New("cbox: out of memory")

	// ErrObjectNotFound is returned when no object lives at the given ID.
	ErrObjectNotFound = errors.New("cbox: object not found")

	// ErrInvalidObjectID is returned for ID 0, an ID already in use, or an
	// explicit ID inside the system range.
	ErrInvalidObjectID = errors.New("cbox: invalid object id")

	// ErrIDsExhausted is returned when the 16-bit ID space is used up.
	ErrIDsExhausted = errors.New("cbox: object ids exhausted")

	// ErrSystemObject is returned when deleting an object in the system range.
	ErrSystemObject = errors.New("cbox: system object")

	// ErrPersistFailed is returned when the store rejects a save or erase.
	ErrPersistFailed = errors.New("cbox: persistence failed")

	// ErrInvalidGroups is returned when a user object is given an empty group mask.
	ErrInvalidGroups = errors.New("cbox: invalid group mask")

	// ErrInvalidCommand is returned for an unknown command opcode.
	ErrInvalidCommand = errors.New("cbox: invalid command")

	// ErrShortRead is returned when a stream ends before a field is complete.
	ErrShortRead = errors.New("cbox: unexpected end of data")

	// ErrBlobTooLarge is returned when a blob does not fit a 16-bit length prefix.
	ErrBlobTooLarge = errors.New("cbox: blob too large")
)

// Status is the one-byte result code carried by every reply.
type Status uint8

// Reply status codes.
const (
	StatusOK                Status = 0
	StatusUnknownError      Status = 1
	StatusCRCError          Status = 2
	StatusInvalidCommand    Status = 3
	StatusInvalidFrame      Status = 4
	StatusInvalidObjectID   Status = 10
	StatusObjectNotFound    Status = 11
	StatusInvalidType       Status = 12
	StatusInvalidDefinition Status = 13
	StatusOutOfMemory       Status = 14
	StatusIDsExhausted      Status = 15
	StatusSystemObject      Status = 16
	StatusPersistFailed     Status = 20
	StatusInvalidGroups     Status = 21
)

var statusNames = map[Status]string{
	StatusOK:                "ok",
	StatusUnknownError:      "unknown_error",
	StatusCRCError:          "crc_error",
	StatusInvalidCommand:    "invalid_command",
	StatusInvalidFrame:      "invalid_frame",
	StatusInvalidObjectID:   "invalid_object_id",
	StatusObjectNotFound:    "object_not_found",
	StatusInvalidType:       "invalid_type",
	StatusInvalidDefinition: "invalid_definition",
	StatusOutOfMemory:       "out_of_memory",
	StatusIDsExhausted:      "ids_exhausted",
	StatusSystemObject:      "system_object",
	StatusPersistFailed:     "persistence_failed",
	StatusInvalidGroups:     "invalid_group_mask",
}

// String returns the snake_case name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown_error"
}

// statusTable is checked in order; the first match wins.
var statusTable = []struct {
	err    error
	status Status
}{
	{ErrPersistFailed, StatusPersistFailed},
	{ErrInvalidType, StatusInvalidType},
	{ErrInvalidDefinition, StatusInvalidDefinition},
	{ErrOutOfMemory, StatusOutOfMemory},
	{ErrObjectNotFound, StatusObjectNotFound},
	{ErrInvalidObjectID, StatusInvalidObjectID},
	{ErrIDsExhausted, StatusIDsExhausted},
	{ErrSystemObject, StatusSystemObject},
	{ErrInvalidGroups, StatusInvalidGroups},
	{ErrInvalidCommand, StatusInvalidCommand},
	{ErrShortRead, StatusInvalidFrame},
	{ErrBlobTooLarge, StatusInvalidFrame},
}

// StatusOf maps an error returned by this package (possibly wrapped) onto a
// wire status. A nil error is StatusOK; anything unrecognised is
// StatusUnknownError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	for _, entry := range statusTable {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return StatusUnknownError
}
