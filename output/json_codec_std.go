//go:build !jsonv2

package output

import "encoding/json"

// encodeLine renders value as a single NDJSON line.
func encodeLine(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
