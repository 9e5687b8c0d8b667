// Package ident validates the agent identifiers and good names that enter the
// engine through its outer surfaces (HTTP API, scenario files). Inside the
// core they are opaque strings.
package ident

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/atmx/clearing-engine/internal/model"
)

// MaxLen bounds identifiers so they stay usable as metric labels and keys.
const MaxLen = 64

// identRegex matches: letter or digit, then letters, digits, '_', '-', '.'.
// Examples: firm1, consumer_07, widget, raw.supply
var identRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

var (
	ErrInvalidAgentID = errors.New("ident: invalid agent id")
	ErrInvalidGood    = errors.New("ident: invalid good name")
	ErrInvalidKey     = errors.New("ident: invalid quote key")
)

// ValidateAgentID checks an agent identifier.
func ValidateAgentID(id string) error {
	if !valid(id) {
		return fmt.Errorf("%w: %q", ErrInvalidAgentID, id)
	}
	return nil
}

// ValidateGood checks a good name.
func ValidateGood(good string) error {
	if !valid(good) {
		return fmt.Errorf("%w: %q", ErrInvalidGood, good)
	}
	return nil
}

// ValidateOrder checks the identifiers on an order.
func ValidateOrder(o model.Order) error {
	if err := ValidateAgentID(o.BuyerID); err != nil {
		return err
	}
	if err := ValidateAgentID(o.SellerID); err != nil {
		return err
	}
	return ValidateGood(o.Good)
}

// ValidateQuote checks the identifiers on a quote.
func ValidateQuote(q model.Quote) error {
	if err := ValidateAgentID(q.SellerID); err != nil {
		return err
	}
	return ValidateGood(q.Good)
}

// ParseKey parses a quote key of the form {seller}:{good}.
// Example: firm1:widget
func ParseKey(s string) (model.QuoteKey, error) {
	seller, good, ok := strings.Cut(s, ":")
	if !ok {
		return model.QuoteKey{}, fmt.Errorf("%w: %s (expected {seller}:{good})", ErrInvalidKey, s)
	}
	if err := ValidateAgentID(seller); err != nil {
		return model.QuoteKey{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if err := ValidateGood(good); err != nil {
		return model.QuoteKey{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return model.QuoteKey{SellerID: seller, Good: good}, nil
}

// FormatKey is the inverse of ParseKey.
func FormatKey(k model.QuoteKey) string {
	return k.SellerID + ":" + k.Good
}

func valid(s string) bool {
	return len(s) <= MaxLen && identRegex.MatchString(s)
}
