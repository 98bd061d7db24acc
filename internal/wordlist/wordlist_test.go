package wordlist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wordlist.txt")
	content := "# common passwords\npassword\nQwerty\n\n  letmein  \n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write wordlist: %v", err)
	}

	list, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if list.Len() != 3 {
		t.Errorf("Len = %d; want 3", list.Len())
	}
	if !list.ContainsWord("password") {
		t.Error("expected 'password' to be listed")
	}
	if !list.ContainsWord("QWERTY") {
		t.Error("lookup should be case-insensitive")
	}
	if !list.ContainsWord(" letmein ") {
		t.Error("lookup should trim surrounding whitespace")
	}
	if list.ContainsWord("# common passwords") {
		t.Error("comment lines must not be loaded")
	}
	if list.ContainsWord("sunshine") {
		t.Error("unexpected membership")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestContainsWord_NilList(t *testing.T) {
	var list *List
	if list.ContainsWord("anything") {
		t.Error("nil list must not match")
	}
}
