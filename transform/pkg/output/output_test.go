package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/color"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func TestMessages(t *testing.T) {
	tests := []struct {
		name  string
		print func(*bytes.Buffer)
		want  string
	}{
		{name: "success", print: func(b *bytes.Buffer) { Success(b, "loaded %d rows", 5) }, want: "✓ loaded 5 rows\n"},
		{name: "error", print: func(b *bytes.Buffer) { Error(b, "failed") }, want: "✗ failed\n"},
		{name: "info", print: func(b *bytes.Buffer) { Info(b, "source %s", "sheet") }, want: "source sheet\n"},
		{name: "warn", print: func(b *bytes.Buffer) { Warn(b, "%d errors", 2) }, want: "⚠ 2 errors\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.print(&buf)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestTable_Render(t *testing.T) {
	table := NewTable("RAW ID", "CLIENT")
	table.AddRow("r1", "Иванов")
	table.AddRow("row-2", "Li")

	var buf bytes.Buffer
	table.Render(&buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "RAW ID  CLIENT  ", lines[0])
	assert.Equal(t, "------  ------  ", lines[1])
	assert.Equal(t, "r1      Иванов  ", lines[2])
	assert.Equal(t, "row-2   Li      ", lines[3])
}

func TestRender(t *testing.T) {
	v := map[string]int{"records_found": 3}
	table := func() *Table {
		tb := NewTable("FOUND")
		tb.AddRow("3")
		return tb
	}

	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{format: FormatJSON, want: "{\n  \"records_found\": 3\n}\n"},
		{format: FormatYAML, want: "records_found: 3\n"},
		{format: FormatTable, want: "FOUND  \n-----  \n3      \n"},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			err := Render(&buf, tt.format, v, table)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, ValidFormat(tt.format))
				return
			}
			require.NoError(t, err)
			assert.True(t, ValidFormat(tt.format))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
