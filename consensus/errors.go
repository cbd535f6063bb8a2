package consensus

import "fmt"

// ErrorCode names one of the error kinds in the error-handling design: every
// validator returns a typed kind rather than an ad-hoc string so callers can
// errors.As against it instead of pattern-matching messages.
type ErrorCode string

const (
	ErrInvalidBlock          ErrorCode = "InvalidBlock"
	ErrInvalidTransaction    ErrorCode = "InvalidTransaction"
	ErrInvalidUTXOReference  ErrorCode = "InvalidUTXOReference"
	ErrChainTooShort         ErrorCode = "ChainTooShort"
	ErrInvalidChain          ErrorCode = "InvalidChain"
	ErrInsufficientFunds     ErrorCode = "InsufficientFunds"
	ErrInvalidCoinbase       ErrorCode = "InvalidCoinbase"
	ErrInvalidSignature      ErrorCode = "InvalidSignature"
	ErrInsufficientInput     ErrorCode = "InsufficientInput"
)

// ConsensusError is the concrete type behind every ErrorCode returned from
// this package. Use errors.As to recover the Code.
type ConsensusError struct {
	Code ErrorCode
	Msg  string
}

func (e *ConsensusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func newErr(code ErrorCode, msg string) error {
	return &ConsensusError{Code: code, Msg: msg}
}
