package gossip

import "fmt"

// ErrorCode names one of the gossip-runtime error kinds from the
// error-handling design (spec.md §7): peer send failures, an unavailable
// event loop for the HTTP→gossip bridge, and retry exhaustion. Same typed
// shape as consensus.ErrorCode/ConsensusError, kept as its own small type
// here rather than importing consensus, since these kinds are runtime
// conditions of this package, not consensus rule violations.
type ErrorCode string

const (
	ErrPeerSendFailed ErrorCode = "PeerSendFailed"
	ErrLoopUnavailable ErrorCode = "LoopUnavailable"
	ErrMaxRetries      ErrorCode = "MaxRetries"
)

// GossipError is the concrete type behind every ErrorCode returned from
// this package. Use errors.As to recover the Code.
type GossipError struct {
	Code ErrorCode
	Msg  string
}

func (e *GossipError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func newErr(code ErrorCode, msg string) error {
	return &GossipError{Code: code, Msg: msg}
}
