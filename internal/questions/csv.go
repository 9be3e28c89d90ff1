package questions

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ImportResult is the outcome of parsing an uploaded question sheet.
type ImportResult struct {
	Records  []Record `json:"-"`
	Skipped  int      `json:"skipped"`
	Rows     int      `json:"rows"`
	Imported int      `json:"imported"`
}

// column aliases accepted in the header row, first match wins.
var (
	textColumns       = []string{"text", "question"}
	optionColumns     = [][]string{{"option1", "a"}, {"option2", "b"}, {"option3", "c"}, {"option4", "d"}}
	obfuscatedColumns = []string{"obfuscated1", "obfuscated2", "obfuscated3", "obfuscated4"}
	correctColumns    = []string{"correct", "correctindex"}
)

// ParseCSV reads questions from a CSV sheet with a header row. Rows that do
// not produce a valid question are skipped and counted. Only a malformed
// file (or a header without a question column) is an error.
func ParseCSV(r io.Reader) (*ImportResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &ImportResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := lookup(cols, textColumns); !ok {
		return nil, fmt.Errorf("csv header needs one of %v", textColumns)
	}

	res := &ImportResult{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", res.Rows+2, err)
		}
		res.Rows++

		rec, ok := parseRow(cols, row)
		if !ok {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func parseRow(cols map[string]int, row []string) (Record, bool) {
	field := func(names ...string) string {
		i, ok := lookup(cols, names)
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := Record{Text: field(textColumns...), Active: true}
	for i, names := range optionColumns {
		text := field(names...)
		if text == "" {
			continue
		}
		rec.Options = append(rec.Options, Option{Text: text, Obfuscated: field(obfuscatedColumns[i])})
	}

	var err error
	if v := field(correctColumns...); v != "" {
		if rec.CorrectIndex, err = strconv.Atoi(v); err != nil {
			return Record{}, false
		}
	}
	if v := field("difficulty"); v != "" {
		if rec.Difficulty, err = strconv.Atoi(v); err != nil {
			return Record{}, false
		}
	}
	rec.Category = Category(strings.ToLower(field("category")))

	rec.Normalize()
	if rec.Validate() != nil {
		return Record{}, false
	}
	return rec, true
}

func lookup(cols map[string]int, names []string) (int, bool) {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i, true
		}
	}
	return 0, false
}
