package gateway

// gatewayError signals that the local server process could not be reached or
// answered with something other than a usable response. Maps to 503 when the
// availability probe is the caller.
type gatewayError struct {
	op  string
	msg string
}

func (e gatewayError) Error() string { return e.op + ": " + e.msg }

// ErrGateway constructs a gatewayError for the given operation label.
func ErrGateway(op, msg string) error { return gatewayError{op: op, msg: msg} }

// IsGatewayError reports whether err indicates an unreachable/failed server.
func IsGatewayError(err error) bool {
	_, ok := err.(gatewayError)
	return ok
}

// loadError signals that the server is reachable but rejected a load request
// (unknown key, model not downloaded, out of memory). The server's message is
// preserved verbatim since it is the only diagnostic a user can act on.
type loadError struct {
	modelKey string
	msg      string
}

func (e loadError) Error() string { return e.msg }

// ErrLoad constructs a loadError carrying the server's message.
func ErrLoad(modelKey, msg string) error { return loadError{modelKey: modelKey, msg: msg} }

// IsLoadError reports whether err indicates a rejected load.
func IsLoadError(err error) bool {
	_, ok := err.(loadError)
	return ok
}

// unloadError signals that no instance with the requested identifier exists
// or the server otherwise refused to unload it.
type unloadError struct {
	identifier string
	msg        string
}

func (e unloadError) Error() string { return e.msg }

// ErrUnload constructs an unloadError carrying the server's message.
func ErrUnload(identifier, msg string) error { return unloadError{identifier: identifier, msg: msg} }

// IsUnloadError reports whether err indicates a rejected unload.
func IsUnloadError(err error) bool {
	_, ok := err.(unloadError)
	return ok
}
