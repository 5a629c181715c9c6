package display

import "encoding/json"

// MarshalJSON marshals v with indentation for readable diffs and terminals
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
