package deck

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Deck is a named set of card values a session votes with. Cards are kept as
// strings because decks may carry non-numeric cards such as "?" or "coffee".
type Deck struct {
	Name  string   `yaml:"name"`
	Cards []string `yaml:"cards"`
}

// Registry holds the decks available to sessions, keyed by deck name.
type Registry struct {
	decks map[string]Deck
}

// builtin decks match the defaults the frontend ships with.
var builtin = []Deck{
	{Name: "fibonacci", Cards: []string{"0", "1", "2", "3", "5", "8", "13", "21", "34", "?"}},
	{Name: "tshirt", Cards: []string{"1", "2", "3", "5", "8", "?"}},
	{Name: "powers", Cards: []string{"1", "2", "4", "8", "16", "32", "?"}},
}

// NewRegistry returns a registry seeded with the built-in decks.
func NewRegistry() *Registry {
	r := &Registry{decks: make(map[string]Deck)}
	for _, d := range builtin {
		r.decks[d.Name] = d
	}
	return r
}

// LoadFile merges decks from a YAML file into the registry. File decks
// override built-ins with the same name.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read deck config: %w", err)
	}

	var cfg struct {
		Decks []Deck `yaml:"decks"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse deck config: %w", err)
	}

	for _, d := range cfg.Decks {
		if d.Name == "" || len(d.Cards) == 0 {
			return fmt.Errorf("deck %q must have a name and at least one card", d.Name)
		}
		r.decks[d.Name] = d
	}
	return nil
}

// Get returns the deck for the given name.
func (r *Registry) Get(name string) (Deck, bool) {
	d, ok := r.decks[name]
	return d, ok
}

// ValidCard reports whether value is a card in the named deck. Unknown deck
// names accept any value so a stale session config cannot block voting.
func (r *Registry) ValidCard(deckName, value string) bool {
	d, ok := r.decks[deckName]
	if !ok {
		return true
	}
	for _, c := range d.Cards {
		if c == value {
			return true
		}
	}
	return false
}

// NumericValue parses a card as a number. Non-numeric cards ("?", "coffee")
// return ok=false and are excluded from averages.
func NumericValue(card string) (float64, bool) {
	v, err := strconv.ParseFloat(card, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
