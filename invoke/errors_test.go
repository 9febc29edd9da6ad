package invoke

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liaozhiqiu/lsprpc/jsonrpc2"
)

func TestReplyForCancel_MapsReasonToErrorCode(t *testing.T) {
	cases := []struct {
		reason CancelReason
		code   int
		isNil  bool
	}{
		{ReasonPeerCancel, jsonrpc2.RequestCancelled, false},
		{ReasonTimeout, jsonrpc2.RequestCancelled, false},
		{ReasonContentModified, jsonrpc2.ContentModified, false},
		{ReasonShutdown, 0, true},
	}

	for _, c := range cases {
		got := replyForCancel(c.reason)
		if c.isNil {
			require.Nil(t, got)
			continue
		}
		require.NotNil(t, got)
		require.Equal(t, c.code, got.Code)
	}
}
