package models

import (
	"sort"
	"time"
)

// MatchMode selects how a user threshold is compared with an event probability.
type MatchMode string

const (
	// MatchDirectional requires the threshold sign to agree with the event: t > 0 && t <= p, or t < 0 && t >= p.
	MatchDirectional MatchMode = "directional"
	// MatchMagnitude compares absolute values only: |t| <= |p|.
	MatchMagnitude MatchMode = "magnitude"
)

// SymbolEvent is the immutable record of one percentile crossing.
type SymbolEvent struct {
	ID          string             `json:"id"`
	Probability float64            `json:"probability"`
	Symbol      SymbolIdentity     `json:"symbol"`
	Preferences map[string]float64 `json:"preferences,omitempty"`
	FiredAt     time.Time          `json:"firedAt"`
}

// ThresholdMatches reports whether a user threshold is satisfied by probability p.
func ThresholdMatches(mode MatchMode, threshold, p float64) bool {
	if mode == MatchMagnitude {
		return abs(threshold) <= abs(p)
	}
	return (threshold > 0 && threshold <= p) || (threshold < 0 && threshold >= p)
}

// Subscribers returns the users whose threshold is satisfied by the event probability.
func (e *SymbolEvent) Subscribers(mode MatchMode) []string {
	subs := make([]string, 0, len(e.Preferences))
	for _, userID := range sortedKeys(e.Preferences) {
		if ThresholdMatches(mode, e.Preferences[userID], e.Probability) {
			subs = append(subs, userID)
		}
	}
	return subs
}

// Rising reports whether the event predicts a rise.
func (e *SymbolEvent) Rising() bool { return e.Probability > 0 }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
