package errcode

// Error codes carried in websocket notification payloads:
// - 0: no error
// - 4xxx: recoverable business conditions (the flow continued)
// - 5xxx: system errors (the flow was aborted)
const (
	OK              = 0
	ResourceMissing = 4004
	SystemError     = 5000
)
