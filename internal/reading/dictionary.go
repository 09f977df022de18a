package reading

import (
	"sort"

	"yomiage-bot/internal/store"
)

// Entry is one user dictionary entry. Surface forms are literal substrings,
// never patterns.
type Entry struct {
	Surface string
	Reading string
}

// Dictionary is the in-memory cache of the persisted user dictionary,
// ordered longest surface form first so longer matches win over shorter
// substrings. It is refreshed from the store before each conversion and
// resorted on mutation.
type Dictionary struct {
	store *store.Store
}

// NewDictionary creates a dictionary cache backed by the given store.
func NewDictionary(s *store.Store) *Dictionary {
	return &Dictionary{store: s}
}

// Entries returns the current entries, longest surface form first.
func (d *Dictionary) Entries() ([]Entry, error) {
	words, err := d.store.Words()
	if err != nil {
		return nil, err
	}
	return sortEntries(words), nil
}

// Add registers or overwrites one entry.
func (d *Dictionary) Add(surface, reading string) error {
	return d.store.PutWord(surface, reading)
}

// Delete removes one entry.
func (d *Dictionary) Delete(surface string) error {
	return d.store.DeleteWord(surface)
}

func sortEntries(words map[string]string) []Entry {
	entries := make([]Entry, 0, len(words))
	for surface, reading := range words {
		entries = append(entries, Entry{Surface: surface, Reading: reading})
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].Surface) != len(entries[j].Surface) {
			return len(entries[i].Surface) > len(entries[j].Surface)
		}
		// Stable order for equal lengths so conversion is deterministic
		return entries[i].Surface < entries[j].Surface
	})
	return entries
}
