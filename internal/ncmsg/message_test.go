package ncmsg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseRestartRequiresName(t *testing.T) {
	if _, err := Parse([]byte(`{"type":"RESTART"}`)); err == nil {
		t.Fatal("expected error for RESTART without name")
	}
	m, err := Parse([]byte(`{"type":"RESTART","name":"web"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Type != KindRestart || m.Name != "web" {
		t.Fatalf("m = %+v", m)
	}
}

func TestParseRestartGroupRequiresGroup(t *testing.T) {
	if _, err := Parse([]byte(`{"type":"RESTART-GROUP"}`)); err == nil {
		t.Fatal("expected error for RESTART-GROUP without group")
	}
	m, err := Parse([]byte(`{"type":"RESTART-GROUP","group":"web"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Type != KindRestartGroup || m.Group != "web" {
		t.Fatalf("m = %+v", m)
	}
}

func TestParseRestartAllIgnoresExtraFields(t *testing.T) {
	m, err := Parse([]byte(`{"type":"RESTART-ALL"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Type != KindRestartAll {
		t.Fatalf("m = %+v", m)
	}
}

func TestParseUnknownType(t *testing.T) {
	if _, err := Parse([]byte(`{"type":"BOGUS"}`)); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestFileNameWraps(t *testing.T) {
	if got, want := FileName(0, 42), "000Message.42"; got != want {
		t.Fatalf("FileName(0, 42) = %q, want %q", got, want)
	}
	if got, want := FileName(1000, 42), "000Message.42"; got != want {
		t.Fatalf("FileName(1000, 42) = %q, want %q", got, want)
	}
	if got, want := FileName(7, 42), "007Message.42"; got != want {
		t.Fatalf("FileName(7, 42) = %q, want %q", got, want)
	}
}

func TestWriteIsAtomicAndReadable(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, 3, 99, Restart("web")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	name := FileName(3, 99)
	if _, err := os.Stat(filepath.Join(dir, name+".new")); !os.IsNotExist(err) {
		t.Fatalf(".new file left behind: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading written message: %v", err)
	}
	m, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse written message: %v", err)
	}
	if m.Type != KindRestart || m.Name != "web" {
		t.Fatalf("m = %+v", m)
	}
}

func TestConstructors(t *testing.T) {
	if m := Restart("a"); m.Type != KindRestart || m.Name != "a" {
		t.Fatalf("Restart = %+v", m)
	}
	if m := RestartAll(); m.Type != KindRestartAll {
		t.Fatalf("RestartAll = %+v", m)
	}
	if m := RestartGroup("g"); m.Type != KindRestartGroup || m.Group != "g" {
		t.Fatalf("RestartGroup = %+v", m)
	}
}
