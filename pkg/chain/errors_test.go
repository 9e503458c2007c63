package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"user rejected code", &codeError{code: 4001, msg: "User rejected the request."}, KindUserRejected},
		{"unauthorized code", &codeError{code: 4100, msg: "not authorized"}, KindUserRejected},
		{"unknown chain code", &codeError{code: 4902, msg: "Unrecognized chain ID"}, KindNetworkMismatch},
		{"revert code", &codeError{code: 3, msg: "execution reverted: only founder"}, KindTransactionReverted},
		{"revert message", errors.New("Execution reverted"), KindTransactionReverted},
		{"denied message", errors.New("MetaMask Tx Signature: User denied transaction signature."), KindUserRejected},
		{"wrapped code", fmt.Errorf("send: %w", &codeError{code: 4001, msg: "rejected"}), KindUserRejected},
		{"breaker open", gobreaker.ErrOpenState, KindUnknown},
		{"cancelled", context.Canceled, KindUnknown},
		{"other", errors.New("connection refused"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			require.Equal(t, tt.want, KindOf(err))
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_KeepsTaggedErrors(t *testing.T) {
	require.Nil(t, classify(nil))
	require.Same(t, ErrWalletNotInstalled, classify(ErrWalletNotInstalled))

	wrapped := fmt.Errorf("connect: %w", ErrNoAccounts)
	require.Equal(t, KindEnvironmentNotReady, KindOf(wrapped))
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestError_Message(t *testing.T) {
	cause := errors.New("boom")
	require.Equal(t, "send failed: boom", (&Error{Kind: KindUnknown, Message: "send failed", Err: cause}).Error())
	require.Equal(t, "boom", (&Error{Kind: KindUnknown, Err: cause}).Error())
	require.Equal(t, "network mismatch", (&Error{Kind: KindNetworkMismatch}).Error())
}
