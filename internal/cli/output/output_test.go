package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

type agentRow struct {
	SessionID  string    `json:"session_id"`
	Hostname   string    `json:"hostname"`
	RemoteAddr string    `json:"remote_addr" table:"wide"`
	LastReport time.Time `json:"last_report"`
	secret     string
}

// ============================================================================
// Format selection
// ============================================================================

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
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

// ============================================================================
// Table
// ============================================================================

func TestTableFormatter_Slice(t *testing.T) {
	rows := []agentRow{
		{SessionID: "01A", Hostname: "node1", RemoteAddr: "10.0.0.1:5000", secret: "x"},
		{SessionID: "01B", RemoteAddr: "10.0.0.2:5000"},
	}

	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, rows); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "SESSION_ID") || !strings.Contains(lines[0], "LAST_REPORT") {
		t.Errorf("header = %q", lines[0])
	}
	if strings.Contains(out, "REMOTE_ADDR") || strings.Contains(out, "10.0.0.1") {
		t.Error("wide column shown without Wide")
	}
	if !strings.Contains(lines[2], "-") {
		t.Errorf("empty hostname should print as '-': %q", lines[2])
	}

	buf.Reset()
	if err := (&TableFormatter{Wide: true}).Format(&buf, rows); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "10.0.0.1:5000") {
		t.Error("wide column missing with Wide")
	}
}

func TestTableFormatter_StructAndMap(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, &agentRow{SessionID: "01A"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "session_id") || !strings.Contains(buf.String(), "01A") {
		t.Errorf("struct output:\n%s", buf.String())
	}

	buf.Reset()
	if err := (&TableFormatter{NoHeaders: true}).Format(&buf, map[string]int{"b": 2, "a": 1}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "a") {
		t.Errorf("map output not sorted or has header:\n%s", buf.String())
	}
}

func TestTableFormatter_FallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, 42); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "42" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestTable_Render(t *testing.T) {
	table := &Table{Headers: []string{"NODE", "APPS"}}
	table.AddRow("node1", "3")

	var buf bytes.Buffer
	if err := table.Render(&buf); err != nil {
		t.Fatal(err)
	}
	want := "NODE   APPS\nnode1  3\n"
	if buf.String() != want {
		t.Errorf("Render() = %q, want %q", buf.String(), want)
	}
}

// ============================================================================
// JSON / YAML
// ============================================================================

func TestYAMLFormatter_RoundTrips(t *testing.T) {
	in := map[string][]string{"node1": {"web", "db"}}

	var buf bytes.Buffer
	if err := (&YAMLFormatter{}).Format(&buf, in); err != nil {
		t.Fatal(err)
	}

	var out map[string][]string
	if err := yaml.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out["node1"]) != 2 || out["node1"][1] != "db" {
		t.Errorf("decoded = %v", out)
	}
}

func TestJSONFormatter_Indents(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONFormatter{}).Format(&buf, map[string]int{"nodes": 2}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "{\n  \"nodes\": 2\n}\n" {
		t.Errorf("output = %q", buf.String())
	}
}
