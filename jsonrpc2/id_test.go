package jsonrpc2

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestID_MarshalUnmarshalRoundTrip(t *testing.T) {
	cases := []ID{
		NewNumberID(42),
		NewStringID("abc-123"),
	}
	for _, id := range cases {
		raw, err := json.Marshal(id)
		require.NoError(t, err)

		var got ID
		require.NoError(t, json.Unmarshal(raw, &got))
		require.Equal(t, id, got)
	}
}

func TestID_ZeroValueMarshalsNull(t *testing.T) {
	var id ID
	raw, err := json.Marshal(id)
	require.NoError(t, err)
	require.Equal(t, "null", string(raw))
	require.False(t, id.IsValid())
}

func TestID_UnmarshalNull(t *testing.T) {
	var id ID
	require.NoError(t, json.Unmarshal([]byte("null"), &id))
	require.False(t, id.IsValid())
}

func TestID_UsableAsMapKey(t *testing.T) {
	m := map[ID]string{
		NewNumberID(1): "one",
		NewStringID("x"): "ex",
	}
	require.Equal(t, "one", m[NewNumberID(1)])
	require.Equal(t, "ex", m[NewStringID("x")])
}
