package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradeSheet() Dataset {
	return Dataset{
		Title:   "X IPA 1 - Mathematics",
		Headers: []string{"Student", "Q1", "Overall"},
		Rows: []map[string]string{
			{"Student": "Ani", "Q1": "80.00", "Overall": "80.00"},
			{"Student": "Budi", "Overall": ""},
		},
		Summary: []SummaryLine{{Label: "Class average", Value: "80.00"}},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(gradeSheet())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Student,Q1,Overall", lines[0])
	assert.Equal(t, "Ani,80.00,80.00", lines[1])
	assert.Equal(t, "Budi,,", lines[2])
	assert.Equal(t, "Class average,80.00", lines[4])
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(gradeSheet())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestCSVExporterNeutralisesFormulas(t *testing.T) {
	data := Dataset{
		Headers: []string{"Student", "Score"},
		Rows: []map[string]string{
			{"Student": "=HYPERLINK(\"x\")", "Score": "-1.5"},
			{"Student": "@cmd", "Score": "+7"},
			{"Student": "-rm", "Score": NoValue},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, NewCSVExporter().Write(&buf, data))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `"'=HYPERLINK(""x"")",-1.5`, lines[1])
	assert.Equal(t, "'@cmd,+7", lines[2])
	assert.Equal(t, "'-rm,-", lines[3])
}

func TestCSVExporterKeepsUndefinedMarker(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"Q1", "Q2"},
		Rows:    []map[string]string{{"Q1": "88.50", "Q2": NoValue}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Q1,Q2\n88.50,-\n", string(out))
}

func TestPDFExporterPaginatesLongTables(t *testing.T) {
	data := Dataset{Title: "Roster", Headers: []string{"Student", "Overall"}}
	for i := 0; i < 120; i++ {
		data.Rows = append(data.Rows, map[string]string{"Student": "Student", "Overall": "80.00"})
	}
	out, err := NewPDFExporter().Render(data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	pages := bytes.Count(out, []byte("/Type /Page")) - bytes.Count(out, []byte("/Type /Pages"))
	assert.Greater(t, pages, 1)
}
