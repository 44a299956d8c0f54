// Package extract finds the highest reply index in thread markup using an
// ordered chain of matcher tiers.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/threadwatch/internal/watch"
)

// Tier names reported in watch.Extraction.
const (
	TierStructured = "structured"
	TierPermissive = "permissive"
)

// DefaultMarkers are the structural markers that precede a reply number in
// common thread layouts: the modern post container, the post-id span, and
// the legacy definition-list layout.
var DefaultMarkers = []string{
	`<div class="post" id="`,
	`<span class="postid">`,
	`<dt>`,
}

// maxDigits bounds a reply number capture.
const maxDigits = 5

// Matcher is one tier. It returns the highest index it found, or false when
// nothing matched.
type Matcher struct {
	Name  string
	Match func(markup string) (int, bool)
}

// Extractor applies matchers in priority order and keeps the first positive result.
type Extractor struct {
	tiers []Matcher
}

// New builds an Extractor with a structured tier over markers followed by
// the permissive line tier. Empty markers fall back to DefaultMarkers.
func New(markers []string) *Extractor {
	return NewWithTiers(Structured(markers), Permissive())
}

// NewWithTiers builds an Extractor from an explicit tier chain.
func NewWithTiers(tiers ...Matcher) *Extractor {
	return &Extractor{tiers: tiers}
}

// Extract implements watch.Extractor.
func (e *Extractor) Extract(markup string) watch.Extraction {
	found := false
	for _, tier := range e.tiers {
		n, ok := tier.Match(markup)
		if !ok {
			continue
		}
		found = true
		if n > 0 {
			return watch.Extraction{Index: n, Tier: tier.Name, Found: true}
		}
	}
	return watch.Extraction{Found: found}
}

// ExtractMaxIndex runs the default tier chain and returns the plain index.
func ExtractMaxIndex(markup string) int {
	return New(nil).Extract(markup).Index
}

// Structured matches a marker immediately followed by 1-5 digits and a
// non-digit boundary.
func Structured(markers []string) Matcher {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	quoted := make([]string, 0, len(markers))
	for _, m := range markers {
		if strings.TrimSpace(m) == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(m))
	}
	if len(quoted) == 0 {
		return Matcher{Name: TierStructured, Match: func(string) (int, bool) { return 0, false }}
	}
	re := regexp.MustCompile(`(?:` + strings.Join(quoted, "|") + `)(\d{1,5})\D`)
	return Matcher{Name: TierStructured, Match: maxCapture(re)}
}

// Permissive matches lines that start, after optional blanks, with 1-5
// digits and an ASCII or full-width colon.
func Permissive() Matcher {
	re := regexp.MustCompile(`(?m)^[ \t]*(\d{1,5})[:：]`)
	return Matcher{Name: TierPermissive, Match: maxCapture(re)}
}

func maxCapture(re *regexp.Regexp) func(string) (int, bool) {
	return func(markup string) (int, bool) {
		best, found := 0, false
		for _, m := range re.FindAllStringSubmatch(markup, -1) {
			n, ok := parseIndex(m[1])
			if !ok {
				continue
			}
			found = true
			if n > best {
				best = n
			}
		}
		return best, found
	}
}

// parseIndex rejects anything that is not a short run of ASCII digits.
func parseIndex(s string) (int, bool) {
	if s == "" || len(s) > maxDigits {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
