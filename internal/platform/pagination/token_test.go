package pagination

import (
	"errors"
	"testing"
)

func TestEncodeTokenRoundTrip(t *testing.T) {
	token, err := EncodeToken(Cursor{StartAfter: []any{"2026-08-01T00:00:00Z", "doc-1"}})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	cursor, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if len(cursor.StartAfter) != 2 {
		t.Fatalf("expected 2 cursor values, got %d", len(cursor.StartAfter))
	}
	if cursor.StartAfter[1] != "doc-1" {
		t.Fatalf("unexpected cursor value %v", cursor.StartAfter[1])
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token, got %q", token)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	if _, err := DecodeToken("%%%not-base64%%%"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestDecodeTokenEmptyIsNoCursor(t *testing.T) {
	cursor, err := DecodeToken("  ")
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if len(cursor.StartAfter) != 0 || len(cursor.StartAt) != 0 {
		t.Fatal("expected zero cursor")
	}
}
