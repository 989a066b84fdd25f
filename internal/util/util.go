// internal/util/util.go
package util

import "encoding/json"

// DecodeJSON coerces a bus payload into dst. Payloads that crossed a
// transport arrive as []byte or string and unmarshal directly; native Go
// values (decoded config trees, structs from in-process peers) take a
// round trip through Marshal.
func DecodeJSON[T any](src any, dst *T) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dst)
}
