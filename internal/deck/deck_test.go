package deck

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidCard(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		deck  string
		value string
		want  bool
	}{
		{"fibonacci", "8", true},
		{"fibonacci", "?", true},
		{"fibonacci", "4", false},
		{"powers", "16", true},
		{"tshirt", "13", false},
		// Unknown decks accept anything.
		{"custom-deck", "999", true},
	}

	for _, tt := range tests {
		if got := r.ValidCard(tt.deck, tt.value); got != tt.want {
			t.Errorf("ValidCard(%q, %q) = %v, want %v", tt.deck, tt.value, got, tt.want)
		}
	}
}

func TestLoadFileOverridesBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decks.yaml")
	content := []byte(`
decks:
  - name: fibonacci
    cards: ["1", "2", "3"]
  - name: risk
    cards: ["low", "medium", "high"]
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write deck file: %v", err)
	}

	r := NewRegistry()
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if r.ValidCard("fibonacci", "8") {
		t.Error("override kept builtin card 8")
	}
	if !r.ValidCard("fibonacci", "2") {
		t.Error("override card 2 not accepted")
	}
	if !r.ValidCard("risk", "medium") {
		t.Error("file deck card not accepted")
	}
}

func TestLoadFileRejectsEmptyDeck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decks.yaml")
	if err := os.WriteFile(path, []byte("decks:\n  - name: broken\n    cards: []\n"), 0o644); err != nil {
		t.Fatalf("write deck file: %v", err)
	}

	r := NewRegistry()
	if err := r.LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted a deck with no cards")
	}
}

func TestNumericValue(t *testing.T) {
	if v, ok := NumericValue("13"); !ok || v != 13 {
		t.Errorf("NumericValue(13) = %v, %v", v, ok)
	}
	if v, ok := NumericValue("0.5"); !ok || v != 0.5 {
		t.Errorf("NumericValue(0.5) = %v, %v", v, ok)
	}
	if _, ok := NumericValue("?"); ok {
		t.Error("NumericValue(?) reported numeric")
	}
	if _, ok := NumericValue("coffee"); ok {
		t.Error("NumericValue(coffee) reported numeric")
	}
}
