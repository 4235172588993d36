package export

import "fmt"

// NoValue is the cell text of a value that is not defined yet, such as an
// ungraded quarter. It is never read as a number or a formula.
const NoValue = "-"

// Dataset defines tabular export content. Rows are keyed by header name so
// missing cells render empty.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
	// Summary holds trailing label/value lines such as class averages.
	Summary []SummaryLine
}

// SummaryLine is a label/value pair printed under the table.
type SummaryLine struct {
	Label string
	Value string
}

func (d Dataset) validate(format string) error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", format)
	}
	return nil
}

func (d Dataset) record(row map[string]string) []string {
	record := make([]string, len(d.Headers))
	for i, header := range d.Headers {
		record[i] = row[header]
	}
	return record
}
