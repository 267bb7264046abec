//go:build jsonv2

package output

import jsonv2 "encoding/json/v2"

// encodeLine renders value as a single NDJSON line.
func encodeLine(value any) ([]byte, error) {
	data, err := jsonv2.Marshal(value)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
