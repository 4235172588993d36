package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVExporter writes datasets as comma separated text.
type CSVExporter struct {
	comma rune
}

// NewCSVExporter builds a CSV exporter using a comma delimiter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{comma: ','}
}

// Render returns the dataset encoded as CSV.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the header row, the data rows and, after one empty record,
// the summary lines to w.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if err := data.validate("csv"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if e.comma != 0 {
		cw.Comma = e.comma
	}

	records := make([][]string, 0, len(data.Rows)+len(data.Summary)+2)
	records = append(records, sanitizeRecord(data.Headers))
	for _, row := range data.Rows {
		records = append(records, sanitizeRecord(data.record(row)))
	}
	if len(data.Summary) > 0 {
		records = append(records, []string{""})
		for _, line := range data.Summary {
			records = append(records, sanitizeRecord([]string{line.Label, line.Value}))
		}
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// sanitizeRecord neutralises cells a spreadsheet would evaluate as a
// formula. Numbers pass through untouched.
func sanitizeRecord(cells []string) []string {
	out := make([]string, len(cells))
	for i, cell := range cells {
		out[i] = sanitizeCell(cell)
	}
	return out
}

func sanitizeCell(cell string) string {
	if cell == "" || cell == NoValue {
		return cell
	}
	switch cell[0] {
	case '=', '+', '-', '@', '\t', '\r':
		if _, err := strconv.ParseFloat(cell, 64); err == nil {
			return cell
		}
		return "'" + cell
	}
	return cell
}
