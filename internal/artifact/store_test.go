package artifact

import (
	"os"
	"testing"
)

func TestWriteNamesByUserAndAttempt(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	name, err := s.Write(10, 3, []byte("RIFF"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if name != "tts_10_3.wav" {
		t.Errorf("name = %q, want tts_10_3.wav", name)
	}

	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "RIFF" {
		t.Errorf("content = %q, want RIFF", data)
	}
}

// Successive attempts for the same user must not overwrite each other.
func TestWriteNoOverwriteAcrossAttempts(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	n1, err := s.Write(10, 1, []byte("one"))
	if err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	n2, err := s.Write(10, 2, []byte("two"))
	if err != nil {
		t.Fatalf("Write 2: %v", err)
	}
	if n1 == n2 {
		t.Fatalf("attempt artifacts share a name: %q", n1)
	}

	data, err := os.ReadFile(s.Path(n1))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "one" {
		t.Errorf("first artifact content = %q, want one", data)
	}
}
