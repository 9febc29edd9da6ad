package jsonrpc2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReceive_ClassifiesRequest(t *testing.T) {
	batch := Receive([]byte(`{"jsonrpc":"2.0","id":1,"method":"textDocument/hover","params":{}}`))
	require.Len(t, batch.Items, 1)
	require.Equal(t, ItemRequest, batch.Items[0].Kind)
	require.Equal(t, "textDocument/hover", batch.Items[0].Request.Method)
	require.True(t, batch.Items[0].Request.ID.IsValid())
	require.Empty(t, batch.Invalid)
}

func TestReceive_ClassifiesNotification(t *testing.T) {
	batch := Receive([]byte(`{"jsonrpc":"2.0","method":"textDocument/didOpen","params":{}}`))
	require.Len(t, batch.Items, 1)
	require.Equal(t, ItemNotification, batch.Items[0].Kind)
	require.Equal(t, "textDocument/didOpen", batch.Items[0].Notification.Method)
}

func TestReceive_ClassifiesResponse(t *testing.T) {
	batch := Receive([]byte(`{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`))
	require.True(t, batch.HasResponse)
	require.Len(t, batch.Items, 1)
	require.Equal(t, ItemResponse, batch.Items[0].Kind)
	require.Equal(t, NewNumberID(7), batch.Items[0].Response.ID)
}

func TestReceive_ResponseWithBothResultAndErrorIsInvalid(t *testing.T) {
	batch := Receive([]byte(`{"jsonrpc":"2.0","id":7,"result":1,"error":{"code":-32000,"message":"x"}}`))
	require.Empty(t, batch.Items)
	require.Len(t, batch.Invalid, 1)
	require.Equal(t, InvalidRequest, batch.Invalid[0].Error.Code)
}

func TestReceive_WrongVersionYieldsInvalidRequest(t *testing.T) {
	batch := Receive([]byte(`{"jsonrpc":"1.0","id":1,"method":"foo"}`))
	require.Empty(t, batch.Items)
	require.Len(t, batch.Invalid, 1)
	require.Equal(t, InvalidRequest, batch.Invalid[0].Error.Code)
	require.Equal(t, NewNumberID(1), batch.Invalid[0].ID)
}

func TestReceive_MalformedJSONYieldsParseError(t *testing.T) {
	batch := Receive([]byte(`not json at all`))
	require.Empty(t, batch.Items)
	require.Len(t, batch.Invalid, 1)
	require.Equal(t, ParseError, batch.Invalid[0].Error.Code)
	require.False(t, batch.Invalid[0].ID.IsValid())
}

func TestReceive_BatchFlattensEachElement(t *testing.T) {
	batch := Receive([]byte(`[
		{"jsonrpc":"2.0","id":1,"method":"a"},
		{"jsonrpc":"2.0","method":"b"},
		{"jsonrpc":"2.0","id":2,"result":null}
	]`))
	require.Len(t, batch.Items, 3)
	require.Equal(t, ItemRequest, batch.Items[0].Kind)
	require.Equal(t, ItemNotification, batch.Items[1].Kind)
	require.Equal(t, ItemResponse, batch.Items[2].Kind)
	require.True(t, batch.HasResponse)
}

func TestReceive_EmptyBatchIsInvalid(t *testing.T) {
	batch := Receive([]byte(`[]`))
	require.Empty(t, batch.Items)
	require.Len(t, batch.Invalid, 1)
	require.Equal(t, InvalidRequest, batch.Invalid[0].Error.Code)
}
