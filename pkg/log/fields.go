package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Feed
	FieldConnID   = "connection_id"
	FieldRoomID   = "room_id"
	FieldSequence = "sequence"
	FieldEvent    = "event"

	// Actor
	FieldUserName = "user_name"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
