package contracts

import "errors"

// Errors reported synchronously by control-domain calls. Misuse of the API
// (the ErrNot*/ErrClientClosed family) fails hard at the call site with no
// partial effect; ErrServerUnavailable means the external patch server could
// not be reached and nothing was attempted twice.
var (
	ErrClientClosed      = errors.New("client is closed")
	ErrNotOutputPort     = errors.New("port is not an output port")
	ErrNotInputPort      = errors.New("port is not an input port")
	ErrUnknownPort       = errors.New("port is not owned by this client")
	ErrPortExists        = errors.New("port name already registered")
	ErrEmptyPayload      = errors.New("event payload is empty")
	ErrInvalidDirection  = errors.New("invalid port direction")
	ErrServerUnavailable = errors.New("patch server unavailable")
	ErrUnsupportedDriver = errors.New("unsupported patch driver")
)
