package models

// LogEntry is the unified shape for structured log records. It is designed
// so log lines can be shipped, parsed and indexed without per-service
// special cases.
type LogEntry struct {
	// ServiceName identifies the service or component that produced the
	// record, e.g. "TranscriptService", "ChatService".
	ServiceName string `json:"service_name"`

	// TraceID ties together records belonging to one request as it crosses
	// services.
	TraceID string `json:"trace_id,omitempty"`

	// UserID identifies the user the record relates to, when applicable.
	UserID string `json:"user_id,omitempty"`

	// RequestInfo carries details of the HTTP request that triggered the
	// record.
	RequestInfo *RequestInfo `json:"request_info,omitempty"`

	// Error carries structured error details, usually at Error level or
	// above.
	Error *ErrorInfo `json:"error,omitempty"`

	// Payload holds any other structured data worth recording.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// RequestInfo stores context about an HTTP request.
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
}

// ErrorInfo stores structured information about an error.
type ErrorInfo struct {
	Message    string `json:"message"`
	Stack      string `json:"stack,omitempty"`
	Type       string `json:"type,omitempty"`        // e.g. "ExtractionError", "GenerationError"
	StatusCode int    `json:"status_code,omitempty"` // related HTTP status code
}
