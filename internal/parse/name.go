package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxStationNameLength is the longest accepted station name, in characters.
const MaxStationNameLength = 100

var spaceRe = regexp.MustCompile(`[\s\p{Zs}]+`)

// StationName normalizes a raw station label: surrounding whitespace is trimmed,
// inner runs of whitespace (including full-width spaces) collapse to one space.
func StationName(raw string) (string, error) {
	s := strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	if s == "" {
		return "", fmt.Errorf("station name must not be empty")
	}
	if n := utf8.RuneCountInString(s); n > MaxStationNameLength {
		return "", fmt.Errorf("station name is %d characters long, at most %d are allowed", n, MaxStationNameLength)
	}
	return s, nil
}

// ID parses a positive decimal identifier as used in URL paths.
func ID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
