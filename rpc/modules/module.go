package modules

const (
	codeInvalidParams      = -32602
	codeServerError        = -32000
	codePreconditionFailed = -32010
	codeUnauthorized       = -32001

	// KindInvalidSignature marks a stake whose signature does not recover to
	// the declared participant.
	KindInvalidSignature = "InvalidSignature"
)

// ModuleError carries the HTTP status and JSON-RPC error a module call should
// produce.
type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// ErrorData is attached to precondition and forwarding failures so clients can
// branch on a stable kind instead of the message.
type ErrorData struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}
