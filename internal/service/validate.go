package service

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"nluhub/internal/language"
	"nluhub/internal/models"
)

var (
	identifierPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
	slugPattern       = regexp.MustCompile(`^[-a-z0-9_]+$`)
	slugReplacer      = regexp.MustCompile(`[^a-z0-9_]+`)
)

const identifierMessage = "Enter a valid value consisting of lowercase letters, numbers or underscores."

func validIdentifier(v string) bool {
	return identifierPattern.MatchString(v)
}

// normalizeLanguage validates code into verr under field and returns the
// stored form.
func normalizeLanguage(verr *ValidationError, field, code string) string {
	out, err := language.Normalize(code)
	if err != nil {
		verr.Add(field, "Set a valid language.")
		return ""
	}
	return out
}

// slugify derives a slug from a repository name: accents stripped,
// lowercased, runs of other characters collapsed into one hyphen.
func slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}
	slug := slugReplacer.ReplaceAllString(strings.ToLower(plain), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 32 {
		slug = strings.TrimRight(slug[:32], "-")
	}
	return slug
}

// validateSpans checks entity annotations against text. Offsets are in
// characters. Spans must lie inside the text and must not overlap.
func validateSpans(verr *ValidationError, text string, spans []models.EntitySpanInput) {
	length := utf8.RuneCountInString(text)

	for _, s := range spans {
		if !validIdentifier(s.Entity) {
			verr.Add("entities", "entity: "+identifierMessage)
		}
		if s.Label != "" {
			if !validIdentifier(s.Label) {
				verr.Add("entities", "label: "+identifierMessage)
			} else if s.Label == s.Entity {
				verr.Add("entities", "Label name can't be equal to entity name.")
			}
		}
		if s.Group != "" && !validIdentifier(s.Group) {
			verr.Add("entities", "group: "+identifierMessage)
		}
		if s.Start < 0 || s.End <= s.Start || s.End > length {
			verr.Add("entities", "Entity out of text range.")
		}
	}

	sorted := make([]models.EntitySpanInput, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End {
			verr.Add("entities", "Entities can't overlap.")
			break
		}
	}
}

// sameEntities reports whether the translated spans carry the same entity
// multiset as the original example.
func sameEntities(original []models.ExampleEntity, translated []models.EntitySpanInput) bool {
	if len(original) != len(translated) {
		return false
	}
	counts := make(map[string]int, len(original))
	for _, e := range original {
		counts[e.Entity]++
	}
	for _, s := range translated {
		counts[s.Entity]--
		if counts[s.Entity] < 0 {
			return false
		}
	}
	return true
}

// spansOf converts stored example spans back into their input form.
func spansOf(entities []models.ExampleEntity) []models.EntitySpanInput {
	out := make([]models.EntitySpanInput, 0, len(entities))
	for _, e := range entities {
		s := models.EntitySpanInput{Start: e.Start, End: e.End, Entity: e.Entity}
		if e.Label != nil {
			s.Label = *e.Label
		}
		if e.Group != nil {
			s.Group = *e.Group
		}
		out = append(out, s)
	}
	return out
}
