package models

import (
	"regexp"
	"time"
)

var assetNamePattern = regexp.MustCompile(`^[A-Z0-9]{1,20}$`)

// Asset is a named crypto unit such as BTC or USDT. Two assets with the same name are interchangeable.
type Asset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidateAssetName checks that name is a non-empty uppercase ticker.
func ValidateAssetName(field, name string) error {
	if name == "" {
		return &ValidationError{Field: field, Value: name, Reason: "must not be empty"}
	}
	if !assetNamePattern.MatchString(name) {
		return &ValidationError{Field: field, Value: name, Reason: "must be an uppercase ticker"}
	}
	return nil
}
