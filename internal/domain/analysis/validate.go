package analysis

import (
	"regexp"
	"strings"

	"stocksense/pkg/errors"
)

// tickerPattern matches 1-5 uppercase letters.
var tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// NormalizeTicker uppercases and trims a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// ValidateTicker checks ticker format without any network call and
// returns the normalized symbol.
func ValidateTicker(ticker string) (string, error) {
	normalized := NormalizeTicker(ticker)

	if normalized == "" {
		return "", errors.Wrap(errors.ErrInvalidTicker, "ticker cannot be empty")
	}
	if len(normalized) > 5 {
		return "", errors.Wrapf(errors.ErrInvalidTicker, "ticker %q is too long (max 5 characters)", normalized)
	}
	if !tickerPattern.MatchString(normalized) {
		return "", errors.Wrapf(errors.ErrInvalidTicker, "ticker %q contains invalid characters (only A-Z allowed)", normalized)
	}

	return normalized, nil
}
