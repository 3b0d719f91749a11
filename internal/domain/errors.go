package domain

import "fmt"

// ConnectError reports that the channel transport could not be opened.
// It drives the channel state machine and is never raised to dispatch
// listeners.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TransportError reports a send/receive/timeout failure on an attempted or
// established connection, including HTTP-level failures talking to the geo
// provider.
type TransportError struct {
	Op  string // "send", "receive", "http", "decode"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProviderError reports a non-success status in the provider's response
// envelope, carrying the provider's own message.
type ProviderError struct {
	Query    string // "disk", "rectangle", "nearby"
	Info     string
	Infocode string
}

func (e *ProviderError) Error() string {
	if e.Infocode != "" {
		return fmt.Sprintf("provider %s: %s (%s)", e.Query, e.Info, e.Infocode)
	}
	return fmt.Sprintf("provider %s: %s", e.Query, e.Info)
}

// DecodeError reports a malformed inbound frame. The frame is logged and
// dropped; the channel stays open.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
