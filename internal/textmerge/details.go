package textmerge

import "encoding/json"

func encodeConflictDetails(d ConflictDetails) ([]byte, error) {
	return json.Marshal(d)
}

// DecodeConflictDetails parses the Details payload of a text
// MergeConflict back into its byte-offset pair, for callers (the
// workspace, a UI) that want to locate the conflict-marker block
// inside ProposedMerge without re-parsing the text.
func DecodeConflictDetails(data []byte) (ConflictDetails, error) {
	var d ConflictDetails
	if err := json.Unmarshal(data, &d); err != nil {
		return ConflictDetails{}, err
	}
	return d, nil
}
