package invoke

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func noopHandler(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return nil, nil
}

func TestRegistry_DuplicateRequestHandlerFailsFast(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(Descriptor{Method: "foo", Kind: KindRequest, Handler: noopHandler})
	require.NoError(t, err)

	_, err = r.Register(Descriptor{Method: "foo", Kind: KindRequest, Handler: noopHandler})
	require.Error(t, err)
}

func TestRegistry_NotificationsFanOutInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(Descriptor{Method: "bar", Kind: KindNotification, Handler: noopHandler})
	require.NoError(t, err)
	_, err = r.Register(Descriptor{Method: "bar", Kind: KindNotification, Handler: noopHandler})
	require.NoError(t, err)

	descs := r.LookupNotifications("bar")
	require.Len(t, descs, 2)
}

func TestRegistry_ReleaseRemovesDescriptor(t *testing.T) {
	r := NewRegistry()
	reg, err := r.Register(Descriptor{Method: "foo", Kind: KindRequest, Handler: noopHandler})
	require.NoError(t, err)

	_, ok := r.LookupRequest("foo")
	require.True(t, ok)

	reg.Release()
	_, ok = r.LookupRequest("foo")
	require.False(t, ok)

	// Idempotent.
	require.NotPanics(t, reg.Release)
}

func TestRegistry_MissingMethodOrHandlerRejected(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(Descriptor{Method: "", Kind: KindRequest, Handler: noopHandler})
	require.Error(t, err)

	_, err = r.Register(Descriptor{Method: "foo", Kind: KindRequest, Handler: nil})
	require.Error(t, err)
}

func TestRegistry_LookupRequestMissingReturnsFalse(t *testing.T) {
	r := NewRegistry()
	_, ok := r.LookupRequest("nope")
	require.False(t, ok)
}
