package blocks

import "errors"

// Decode errors returned from StreamFrom. The registry wraps them in
// cbox.ErrInvalidDefinition.
var (
	// ErrMalformedSettings is returned when the settings are not a valid
	// protobuf wire message.
	ErrMalformedSettings = errors.New("blocks: malformed settings")

	// ErrFieldRange is returned when a field value does not fit its type.
	ErrFieldRange = errors.New("blocks: field out of range")
)
