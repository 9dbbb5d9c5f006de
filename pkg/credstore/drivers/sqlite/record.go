package sqlite

import (
	"encoding/json"
	"fmt"

	"github.com/tidehook/authsess/pkg/credstore"
)

func encodeRecord(rec credstore.Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (credstore.Record, error) {
	var rec credstore.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return credstore.Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}
