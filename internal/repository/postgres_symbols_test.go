package repository

import (
	"testing"

	"CoinTrend/internal/domain/models"
)

func TestPreferencesJSON(t *testing.T) {
	b, err := encodePreferences(nil)
	if err != nil || string(b) != "[]" {
		t.Fatalf("nil preferences = %s, %v", b, err)
	}

	in := []models.PreferenceEntry{{UserID: "u1", Threshold: 0.3}, {UserID: "u2", Threshold: -0.5}}
	b, err = encodePreferences(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `[{"userId":"u1","threshold":0.3},{"userId":"u2","threshold":-0.5}]` {
		t.Fatalf("unexpected json %s", b)
	}
	out, err := decodePreferences(b)
	if err != nil || len(out) != 2 || out[1] != in[1] {
		t.Fatalf("decode = %v, %v", out, err)
	}

	if out, err := decodePreferences(nil); err != nil || len(out) != 0 {
		t.Fatalf("empty column = %v, %v", out, err)
	}
	if _, err := decodePreferences([]byte(`{"u1":0.3}`)); err == nil {
		t.Fatal("expected decode error for a non-array document")
	}
}
