package output

import (
	"bytes"
	"strings"
	"testing"
)

type pair struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func (p pair) Rows() [][]string {
	return [][]string{{"name", p.Name}, {"count", "2"}}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"json-compact", FormatJSONCompact, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatJSON).Format(&buf, pair{Name: "a", Count: 2}); err != nil {
		t.Fatal(err)
	}
	want := "{\n  \"name\": \"a\",\n  \"count\": 2\n}\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestJSONFormatter_NoHTMLEscapeAndCompact(t *testing.T) {
	data := map[string]string{"dsn": "postgres://db/tk?sslmode=disable&pool_max_conns=4"}

	var buf bytes.Buffer
	if err := NewFormatter(FormatJSONCompact).Format(&buf, data); err != nil {
		t.Fatal(err)
	}
	want := `{"dsn":"postgres://db/tk?sslmode=disable&pool_max_conns=4"}` + "\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatYAML).Format(&buf, pair{Name: "a", Count: 2}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "name: a\ncount: 2\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestTableFormatter_Rower(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatTable).Format(&buf, pair{Name: "a"}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "FIELD") || !strings.Contains(lines[1], "name") {
		t.Errorf("unexpected table: %q", buf.String())
	}
}

func TestTable_EmptyCellsAndNoHeaders(t *testing.T) {
	tbl := &Table{Headers: []string{"A", "B"}}
	tbl.AddRow("x", "")

	var buf bytes.Buffer
	if err := (&TableFormatter{NoHeaders: true}).Format(&buf, tbl); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "x  -\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestTableFormatter_FallsBackToYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatTable).Format(&buf, map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "a: 1\n" {
		t.Errorf("got %q", buf.String())
	}
}
