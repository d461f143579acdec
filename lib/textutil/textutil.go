package textutil

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeSpace(s string) string {
	s = strings.TrimSpace(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

var compactCountRegex = regexp.MustCompile(`(?i)^([\d.,]+)\s*([KMB])?$`)

// ParseCompactCount converts the abbreviated counts social platforms
// render ("24.5K", "1,2M", "1 234", "822") into an integer. Comma is
// treated as a decimal separator only when a magnitude suffix follows,
// matching how locales like de/fr render "1,2M".
func ParseCompactCount(s string) (int64, error) {
	s = NormalizeSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	m := compactCountRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("unrecognized count %q", s)
	}

	digits := m[1]
	suffix := strings.ToUpper(m[2])

	var mult float64 = 1
	switch suffix {
	case "K":
		mult = 1e3
	case "M":
		mult = 1e6
	case "B":
		mult = 1e9
	}

	if suffix == "" {
		digits = strings.ReplaceAll(digits, ",", "")
		digits = strings.ReplaceAll(digits, ".", "")
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse count %q: %w", s, err)
		}
		return n, nil
	}

	digits = strings.ReplaceAll(digits, ",", ".")
	f, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", s, err)
	}
	return int64(math.Round(f * mult)), nil
}

var followerPhraseRegex = regexp.MustCompile(`(?i)([\d.,]+\s*[KMB]?)\s+(followers|subscribers|fans|abonnés)`)

// ExtractCountBefore finds "<count> <noun>" phrases like the ones packed
// into og:description meta tags ("24.5K Followers, 810 Following, 85 Posts").
func ExtractCountBefore(text, noun string) (int64, bool) {
	re := regexp.MustCompile(`(?i)([\d.,]+\s*[KMB]?)\s+` + regexp.QuoteMeta(noun))
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := ParseCompactCount(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ExtractFollowerCount scans free text for any of the common follower
// nouns across platforms.
func ExtractFollowerCount(text string) (int64, bool) {
	m := followerPhraseRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := ParseCompactCount(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
