package jsonrpc2

import (
	"encoding/json"
)

// ItemKind classifies a decoded JSON-RPC value, per spec.md §4.2.
type ItemKind int

const (
	ItemRequest ItemKind = iota
	ItemNotification
	ItemResponse
)

// Item is one classified element of a (possibly batched) JSON-RPC payload.
type Item struct {
	Kind         ItemKind
	Request      *RequestMessage
	Notification *NotificationMessage
	Response     *ResponseMessage
}

// Batch is the result of classifying one frame's worth of decoded JSON. A
// frame containing a JSON-RPC batch (a top-level array) flattens into one
// Batch with multiple Items, each classified independently (spec.md §4.2).
type Batch struct {
	Items []Item
	// Invalid holds envelope or id-less parse failures that must still
	// elicit an InvalidRequest/ParseError reply (spec.md §4.2, §4.6).
	Invalid []*ResponseMessage
	// HasResponse is true iff any Item is a Response directed at an
	// outbound id. The Input Handler routes the whole batch through the
	// Response Router path when this is set (spec.md §4.2).
	HasResponse bool
}

// envelope is the maximal shape any JSON-RPC element can take; decoding into
// it once lets Receive classify without redundant re-parsing, the same
// technique as the "combined" struct in golang.org/x/tools/internal/jsonrpc2.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// Receive parses and classifies one frame's decoded bytes. data is the raw
// JSON payload handed back by Stream.ReadMessage; it may be a single object
// or a JSON-RPC batch array.
func Receive(data []byte) *Batch {
	b := &Batch{}

	trimmed := skipLeadingSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			b.Invalid = append(b.Invalid, parseErrorReply(err))
			return b
		}
		if len(raws) == 0 {
			b.Invalid = append(b.Invalid, invalidRequestReply(nil, "empty batch"))
			return b
		}
		for _, raw := range raws {
			b.classifyOne(raw)
		}
		return b
	}

	b.classifyOne(data)
	return b
}

func (b *Batch) classifyOne(raw json.RawMessage) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		b.Invalid = append(b.Invalid, parseErrorReply(err))
		return
	}

	if env.JSONRPC != Version {
		b.Invalid = append(b.Invalid, invalidRequestReply(env.ID, "missing or wrong jsonrpc version"))
		return
	}

	switch {
	case env.Method != "" && env.ID != nil && env.ID.IsValid():
		b.Items = append(b.Items, Item{
			Kind: ItemRequest,
			Request: &RequestMessage{
				JSONRPC: env.JSONRPC,
				ID:      *env.ID,
				Method:  env.Method,
				Params:  env.Params,
			},
		})
	case env.Method != "" && (env.ID == nil || !env.ID.IsValid()):
		b.Items = append(b.Items, Item{
			Kind: ItemNotification,
			Notification: &NotificationMessage{
				JSONRPC: env.JSONRPC,
				Method:  env.Method,
				Params:  env.Params,
			},
		})
	case env.ID != nil && env.ID.IsValid() && (env.Result != nil || env.Error != nil) && !(env.Result != nil && env.Error != nil):
		b.HasResponse = true
		b.Items = append(b.Items, Item{
			Kind: ItemResponse,
			Response: &ResponseMessage{
				JSONRPC: env.JSONRPC,
				ID:      *env.ID,
				Result:  env.Result,
				Error:   env.Error,
			},
		})
	default:
		b.Invalid = append(b.Invalid, invalidRequestReply(env.ID, "not a valid request, notification, or response"))
	}
}

func parseErrorReply(err error) *ResponseMessage {
	return &ResponseMessage{
		JSONRPC: Version,
		ID:      ID{},
		Error:   NewError(ParseError, "parse error: "+err.Error()),
	}
}

func invalidRequestReply(id *ID, reason string) *ResponseMessage {
	resp := &ResponseMessage{
		JSONRPC: Version,
		Error:   NewError(InvalidRequest, "invalid request: "+reason),
	}
	if id != nil && id.IsValid() {
		resp.ID = *id
	}
	return resp
}

func skipLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\r', '\n':
			i++
			continue
		}
		break
	}
	return b[i:]
}
