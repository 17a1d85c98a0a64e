package usecase

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/diysmart/productinfo/internal/domain"
)

var (
	// Splits slugs on dashes, underscores, plus signs and whitespace
	slugSeparatorPattern = regexp.MustCompile(`[-_+\s]+`)

	// Strips characters that never belong in a synthesized title
	slugNoisePattern = regexp.MustCompile(`[^\p{L}\p{N}\s.'"/&]`)

	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// slugStopWords are dropped when picking a brand from a slug
var slugStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "with": true, "for": true,
	"of": true, "in": true, "new": true, "pack": true, "set": true, "kit": true,
}

// SlugPreprocessor turns merchant URL slugs into titles and keywords
type SlugPreprocessor struct{}

// NewSlugPreprocessor creates a new slug preprocessor
func NewSlugPreprocessor() *SlugPreprocessor {
	return &SlugPreprocessor{}
}

// Tokens splits a slug into its words, decoding URL escapes
func (p *SlugPreprocessor) Tokens(slug string) []string {
	if decoded, err := url.PathUnescape(slug); err == nil {
		slug = decoded
	}
	slug = slugNoisePattern.ReplaceAllString(slug, " ")
	var tokens []string
	for _, t := range slugSeparatorPattern.Split(slug, -1) {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// Title synthesizes a display title from slug tokens. All-lowercase slugs
// are title-cased; mixed-case slugs keep the merchant's casing.
func (p *SlugPreprocessor) Title(tokens []string) string {
	title := multiSpacePattern.ReplaceAllString(strings.Join(tokens, " "), " ")
	title = strings.TrimSpace(title)
	if title == strings.ToLower(title) {
		// Casers are stateful, so one per call
		title = cases.Title(language.English).String(title)
	}
	return truncateAtWord(title, domain.MaxTitleLength)
}

// Brand returns the first alphabetic token that is not a stop word
func (p *SlugPreprocessor) Brand(tokens []string) string {
	for _, t := range tokens {
		if slugStopWords[strings.ToLower(t)] || len(t) < 2 {
			continue
		}
		if isAlpha(t) {
			return t
		}
		return ""
	}
	return ""
}

// Model returns the first token that mixes letters and digits, e.g. DCD771C2
func (p *SlugPreprocessor) Model(tokens []string) string {
	for _, t := range tokens {
		if len(t) >= 4 && hasLetter(t) && hasDigit(t) {
			return strings.ToUpper(t)
		}
	}
	return ""
}

// Keywords returns the lowercased tokens joined for category matching
func (p *SlugPreprocessor) Keywords(tokens []string) string {
	return strings.ToLower(strings.Join(tokens, " "))
}

// truncateAtWord cuts s to at most max runes, preferring a word boundary
func truncateAtWord(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	cut := string(r[:max])
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

// truncateRunes cuts s to at most max runes
func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
