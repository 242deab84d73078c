package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

const maxLineSize = 64 * 1024 * 1024

// WriteJSONL writes one JSON object per line, in dataset order.
func WriteJSONL(w io.Writer, d *Dataset) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i, r := range d.records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("dataset: encoding record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// ReadJSONL reads one JSON object per line. Blank lines are skipped.
func ReadJSONL(r io.Reader) (*Dataset, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, err
	}
	return New(records), nil
}

// ReadRecords reads JSONL into plain records without building a dataset.
func ReadRecords(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var records []Record
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(trimSpace(b)) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("dataset: line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dataset: reading jsonl: %w", err)
	}
	return records, nil
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t' || b[0] == '\r') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
