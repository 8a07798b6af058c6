package checksum

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSHA256Hex_KnownVectors(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"hello", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
	}
	for _, tt := range tests {
		if got := SHA256Hex([]byte(tt.in)); got != tt.want {
			t.Errorf("SHA256Hex(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSHA256HexReader_MatchesBuffer(t *testing.T) {
	docs := []string{
		"",
		`{"address":"0x5FbDB2315678afecb367f032d93F642f64180aa3","name":"Some Name","symbol":"TTT"}`,
		strings.Repeat("x", 64*1024+7),
	}
	for _, doc := range docs {
		got, err := SHA256HexReader(bytes.NewReader([]byte(doc)))
		if err != nil {
			t.Fatalf("SHA256HexReader() error: %v", err)
		}
		if want := SHA256Hex([]byte(doc)); got != want {
			t.Errorf("SHA256HexReader(len=%d) = %s, want %s", len(doc), got, want)
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestSHA256HexReader_ReadError(t *testing.T) {
	_, err := SHA256HexReader(failingReader{})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("SHA256HexReader() error = %v, want wrapped ErrUnexpectedEOF", err)
	}
}
