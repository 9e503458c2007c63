package chain

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker"
)

// Kind classifies a chain failure so callers can branch without parsing
// provider messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindEnvironmentNotReady
	KindUserRejected
	KindNetworkMismatch
	KindTransactionReverted
)

func (k Kind) String() string {
	switch k {
	case KindEnvironmentNotReady:
		return "environment not ready"
	case KindUserRejected:
		return "user rejected"
	case KindNetworkMismatch:
		return "network mismatch"
	case KindTransactionReverted:
		return "transaction reverted"
	default:
		return "unknown"
	}
}

// Provider error codes defined by EIP-1193 and EIP-3085, plus the code
// nodes use for reverted calls.
const (
	codeUserRejected      = 4001
	codeUnauthorized      = 4100
	codeUnrecognizedChain = 4902
	codeExecutionReverted = 3
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrWalletNotInstalled    = &Error{Kind: KindEnvironmentNotReady, Message: "no wallet provider is available"}
	ErrContractNotConfigured = &Error{Kind: KindEnvironmentNotReady, Message: "registry contract address is not configured"}
	ErrNoAccounts            = &Error{Kind: KindEnvironmentNotReady, Message: "wallet returned no accounts"}
	ErrNoSigner              = &Error{Kind: KindEnvironmentNotReady, Message: "contract handle has no signer, connect a wallet first"}
	ErrReceiptTimeout        = &Error{Kind: KindUnknown, Message: "timed out waiting for transaction receipt"}
)

// KindOf reports the kind of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var chainErr *Error
	if errors.As(err, &chainErr) {
		return chainErr.Kind
	}
	return KindUnknown
}

// classify tags a raw provider error. Already tagged errors pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var chainErr *Error
	if errors.As(err, &chainErr) {
		return err
	}
	return &Error{Kind: kindFor(err), Err: err}
}

func kindFor(err error) Kind {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeUserRejected, codeUnauthorized:
			return KindUserRejected
		case codeUnrecognizedChain:
			return KindNetworkMismatch
		case codeExecutionReverted:
			return KindTransactionReverted
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return KindUnknown
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "execution reverted"):
		return KindTransactionReverted
	case strings.Contains(msg, "user rejected"), strings.Contains(msg, "user denied"):
		return KindUserRejected
	}
	return KindUnknown
}
