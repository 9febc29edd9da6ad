package jsonrpc2

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a JSON-RPC request id. The wire format allows a string, a number,
// or absence of an id (notifications); ID represents all three so ids can
// be compared and used as map keys without re-parsing json.RawMessage on
// every lookup.
type ID struct {
	name   string
	number int64
	isString bool
	isSet  bool
}

// NewNumberID builds an ID carrying an integer, the shape this module's
// own outbound Response Router assigns via a monotone counter (spec §4.5).
func NewNumberID(n int64) ID {
	return ID{number: n, isSet: true}
}

// NewStringID builds an ID carrying a string, the shape a peer's inbound
// request id may take verbatim (spec §3: "ids from the peer are preserved
// verbatim in the response").
func NewStringID(s string) ID {
	return ID{name: s, isString: true, isSet: true}
}

// IsValid reports whether this ID was ever set (as opposed to the zero
// value, which stands for "no id" / a notification).
func (id ID) IsValid() bool { return id.isSet }

// String renders the id for logging.
func (id ID) String() string {
	if !id.isSet {
		return "<none>"
	}
	if id.isString {
		return id.name
	}
	return strconv.FormatInt(id.number, 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if !id.isSet {
		return []byte("null"), nil
	}
	if id.isString {
		return json.Marshal(id.name)
	}
	return json.Marshal(id.number)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ID{}
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = ID{number: n, isSet: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID{name: s, isString: true, isSet: true}
		return nil
	}
	return fmt.Errorf("jsonrpc2: id must be a string, number, or null: %s", data)
}
