package dirmerge

import (
	"encoding/json"
	"fmt"
)

func encodeConflictDetails(d ConflictDetails) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("dirmerge: marshal conflict details: %w", err)
	}
	return data, nil
}

// DecodeConflictDetails parses the Details payload of a directory
// agent.Conflict.
func DecodeConflictDetails(data []byte) (ConflictDetails, error) {
	var d ConflictDetails
	if err := json.Unmarshal(data, &d); err != nil {
		return ConflictDetails{}, fmt.Errorf("dirmerge: unmarshal conflict details: %w", err)
	}
	return d, nil
}
