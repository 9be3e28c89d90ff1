package questions

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed default_bank.json
var defaultBank []byte

// DefaultBank returns the starter riddles loaded on first boot. Records are
// active and carry no id; the store assigns ids on import.
func DefaultBank() ([]Record, error) {
	var recs []Record
	if err := json.Unmarshal(defaultBank, &recs); err != nil {
		return nil, fmt.Errorf("decode default bank: %w", err)
	}
	for i := range recs {
		recs[i].Active = true
		recs[i].Normalize()
		if err := recs[i].Validate(); err != nil {
			return nil, fmt.Errorf("default bank question %d: %w", i+1, err)
		}
	}
	return recs, nil
}
