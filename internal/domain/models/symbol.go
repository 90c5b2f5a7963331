package models

import "time"

const (
	// DefaultDecayPeriod is two weeks expressed in seconds.
	DefaultDecayPeriod = 1209600
	// DefaultPercentileAmount is the number of buckets |probability| is split into.
	DefaultPercentileAmount = 100
)

// SymbolIdentity is the ordered (base, quote) pair of a symbol, e.g. BTC/USDT.
type SymbolIdentity struct {
	Base  Asset `json:"baseAsset"`
	Quote Asset `json:"quoteAsset"`
}

// NewSymbolIdentity builds an identity from asset names only.
func NewSymbolIdentity(base, quote string) SymbolIdentity {
	return SymbolIdentity{Base: Asset{Name: base}, Quote: Asset{Name: quote}}
}

// Key is the order-sensitive registry key.
func (s SymbolIdentity) Key() string { return SymbolKey(s.Base.Name, s.Quote.Name) }

func (s SymbolIdentity) String() string { return s.Base.Name + "/" + s.Quote.Name }

// SymbolKey builds the registry key for a base/quote pair.
func SymbolKey(base, quote string) string { return base + "/" + quote }

// PreferenceEntry is the wire form of one user threshold.
type PreferenceEntry struct {
	UserID    string  `json:"userId"`
	Threshold float64 `json:"threshold"`
}

// SymbolDocument is the persisted form of a symbol signal.
type SymbolDocument struct {
	ID          string            `json:"id"`
	Symbol      SymbolIdentity    `json:"symbol"`
	Probability float64           `json:"probability"`
	DecayPeriod float64           `json:"decayPeriod"`
	Preferences []PreferenceEntry `json:"preferences"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// PreferencesToMap converts wire entries to a map. Later duplicates win.
func PreferencesToMap(entries []PreferenceEntry) map[string]float64 {
	m := make(map[string]float64, len(entries))
	for _, e := range entries {
		m[e.UserID] = e.Threshold
	}
	return m
}

// PreferencesFromMap converts a map to wire entries, ordered by user id.
func PreferencesFromMap(m map[string]float64) []PreferenceEntry {
	entries := make([]PreferenceEntry, 0, len(m))
	for _, id := range sortedKeys(m) {
		entries = append(entries, PreferenceEntry{UserID: id, Threshold: m[id]})
	}
	return entries
}

// UserPreference is one user's threshold on one symbol.
type UserPreference struct {
	Symbol    SymbolIdentity
	Threshold float64
}
