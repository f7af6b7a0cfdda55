package logger

// Field name constants used across the codebase so structured log fields
// stay consistent between packages instead of drifting as ad hoc strings.
const (
	FieldComponent  = "component"
	FieldUser       = "user_pk"
	FieldHomeserver = "homeserver"
	FieldEventID    = "event_id"
	FieldCursor     = "cursor"
	FieldReason     = "reason"
	FieldX          = "x"
	FieldY          = "y"
	FieldColor      = "color"
	FieldSize       = "size"
	FieldDuration   = "duration"
	FieldError      = "error"
)
