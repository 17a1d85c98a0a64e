package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/diysmart/productinfo/internal/domain"
)

// categoryRules is checked in order; the first rule with a matching needle
// wins. Every vocabulary value matches its own rule, which keeps
// NormalizeCategory idempotent. See matchesNeedle for the needle syntax.
var categoryRules = []struct {
	category domain.Category
	needles  []string
}{
	{domain.CategoryTools, []string{
		"tool*", "saw", "drill*", "wrench*", "hammer*", "driver*", "screwdriver*", "sander*",
		"grinder*", "plier*", "router*", "nailer*", "stapler*", "multimeter*", "level*", "chisel*",
	}},
	{domain.CategoryMaterials, []string{
		"material*", "pvc", "lumber", "pipe*", "wire", "wiring", "nail", "screw", "bolt", "fastener*",
		"plywood", "wood", "board", "drywall", "concrete", "cement", "tile", "paint",
		"adhesive*", "glue", "caulk*", "hardware", "fitting*",
	}},
	{domain.CategorySafety, []string{
		"safety", "glove*", "goggle*", "helmet*", "mask*", "respirator*", "glasses",
		"earplug*", "ear muff*", "hard hat*", "vest",
	}},
	{domain.CategoryAccessories, []string{
		"accessor*", "battery", "batteries", "charger*", "bit", "blade*", "bag", "case",
		"holster*", "attachment*", "sandpaper", "disc",
	}},
}

// NormalizeCategory maps a free-form category string onto the closed
// vocabulary. Unrecognized and empty input map to other.
func NormalizeCategory(raw string) domain.Category {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return domain.CategoryOther
	}
	if c := domain.Category(s); c.Valid() {
		return c
	}
	text := wordText(s)
	for _, rule := range categoryRules {
		for _, needle := range rule.needles {
			if matchesNeedle(text, needle) {
				return rule.category
			}
		}
	}
	return domain.CategoryOther
}

// wordText lowercases s into its letter and digit runs, space separated and
// padded with a space on each side.
func wordText(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(words, " ") + " "
}

// matchesNeedle matches a needle against wordText output. A needle ending in
// "*" is a stem and matches any word starting with it. Any other needle must
// be a whole word, optionally pluralised with "s" or "es", so "wire" skips
// "wireless" and "case" skips "staircase".
func matchesNeedle(text, needle string) bool {
	if stem, ok := strings.CutSuffix(needle, "*"); ok {
		return strings.Contains(text, " "+stem)
	}
	for _, suffix := range []string{"", "s", "es"} {
		if strings.Contains(text, " "+needle+suffix+" ") {
			return true
		}
	}
	return false
}

var projectRules = []struct {
	project domain.ProjectType
	needles []string
}{
	{domain.ProjectWoodworking, []string{"wood*", "carpent*", "furniture", "cabinet*", "deck*"}},
	{domain.ProjectElectrical, []string{"electric*", "wiring", "lighting", "outlet*", "circuit*"}},
	{domain.ProjectPlumbing, []string{"plumb*", "pipe*", "faucet*", "drain*", "water heater*"}},
	{domain.ProjectHomeImprovement, []string{"home", "renovat*", "remodel*", "improvement*", "flooring", "drywall", "paint*"}},
	{domain.ProjectGeneral, []string{"general", "repair*", "maintenance", "diy"}},
}

// NormalizeProjectTypes maps free-form project strings onto the project
// vocabulary. The result is sorted, de-duplicated and never empty.
func NormalizeProjectTypes(raw []string) []domain.ProjectType {
	seen := make(map[domain.ProjectType]bool)
	for _, r := range raw {
		if p, ok := normalizeProjectType(r); ok {
			seen[p] = true
		}
	}
	if len(seen) == 0 {
		return []domain.ProjectType{domain.ProjectGeneral}
	}

	out := make([]domain.ProjectType, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func normalizeProjectType(raw string) (domain.ProjectType, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	if p := domain.ProjectType(s); p.Valid() {
		return p, true
	}
	text := wordText(s)
	for _, rule := range projectRules {
		for _, needle := range rule.needles {
			if matchesNeedle(text, needle) {
				return rule.project, true
			}
		}
	}
	return "", false
}

// projectTypeStrings converts typed project types back to strings
func projectTypeStrings(in []domain.ProjectType) []string {
	out := make([]string, len(in))
	for i, p := range in {
		out[i] = string(p)
	}
	return out
}
