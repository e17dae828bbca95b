package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile_MissingFileIsNoop(t *testing.T) {
	t.Parallel()
	if err := LoadFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadFile missing file error: %v", err)
	}
}

func TestLoadFile_LoadsValuesAndPreservesExisting(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "" +
		"# local overrides\n" +
		"KINDLINE_ADDR=:9090\n" +
		"KINDLINE_GEMINI_MODEL=\"gemini-2.0-flash\"\n" +
		"export KINDLINE_AUTH_MODE=disabled\n" +
		"KINDLINE_DATABASE_URL=from_file\n" +
		"not a pair\n" +
		"=no_key\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("KINDLINE_DATABASE_URL", "postgres://real")
	t.Setenv("KINDLINE_ADDR", "")
	os.Unsetenv("KINDLINE_ADDR")
	t.Setenv("KINDLINE_GEMINI_MODEL", "")
	os.Unsetenv("KINDLINE_GEMINI_MODEL")
	t.Setenv("KINDLINE_AUTH_MODE", "")
	os.Unsetenv("KINDLINE_AUTH_MODE")

	if err := LoadFile(envPath); err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	if got := os.Getenv("KINDLINE_ADDR"); got != ":9090" {
		t.Fatalf("KINDLINE_ADDR=%q, want :9090", got)
	}
	if got := os.Getenv("KINDLINE_GEMINI_MODEL"); got != "gemini-2.0-flash" {
		t.Fatalf("KINDLINE_GEMINI_MODEL=%q, quotes not stripped", got)
	}
	if got := os.Getenv("KINDLINE_AUTH_MODE"); got != "disabled" {
		t.Fatalf("KINDLINE_AUTH_MODE=%q, export prefix not handled", got)
	}
	if got := os.Getenv("KINDLINE_DATABASE_URL"); got != "postgres://real" {
		t.Fatalf("KINDLINE_DATABASE_URL=%q, want existing value preserved", got)
	}
}

func TestParseLine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		line string
		key  string
		val  string
		ok   bool
	}{
		{"A=1", "A", "1", true},
		{"  A = 1  ", "A", "1", true},
		{"export A=1", "A", "1", true},
		{`A="quoted value"`, "A", "quoted value", true},
		{"A='single'", "A", "single", true},
		{"# comment", "", "", false},
		{"", "", "", false},
		{"no equals", "", "", false},
		{"=orphan", "", "", false},
	}
	for _, tc := range cases {
		key, val, ok := parseLine(tc.line)
		if key != tc.key || val != tc.val || ok != tc.ok {
			t.Fatalf("parseLine(%q) = (%q, %q, %v), want (%q, %q, %v)", tc.line, key, val, ok, tc.key, tc.val, tc.ok)
		}
	}
}
