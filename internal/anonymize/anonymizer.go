// Package anonymize detects and reversibly redacts personally identifying
// substrings before text leaves the device. Every replacement is recorded
// in a mapping so Deanonymize can restore the exact original text.
package anonymize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PII type tags used in placeholders.
const (
	TypeIBAN  = "IBAN"
	TypeID    = "ID"
	TypeCard  = "CARD"
	TypePhone = "PHONE"
	TypeEmail = "EMAIL"
	TypeName  = "NAME"
)

// Mapping links placeholders back to the original sensitive text. It is
// the sole ownership link to the redacted data and must live no longer
// than one AI task's round trip.
type Mapping map[string]string

// Detection records one redacted span of the original text.
type Detection struct {
	Type        string
	Original    string
	Placeholder string
	Start       int
	End         int
}

// Result is the output of Anonymize.
type Result struct {
	Text       string
	Mapping    Mapping
	Detections []Detection
}

type rule struct {
	name string
	re   *regexp.Regexp
}

// Detection rules in priority order: most specific first, so an IBAN is
// never half-claimed by the card or phone rules.
var defaultRules = []rule{
	{TypeIBAN, regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`)},
	{TypeID, regexp.MustCompile(`\b\d{12}\b`)},
	{TypeCard, regexp.MustCompile(`\b(?:\d{4}[ -]){3}\d{4}\b`)},
	{TypePhone, regexp.MustCompile(`(?:\+\d{1,3}|\b8)[ -]?\(?\d{3}\)?[ -]?\d{3}[ -]?(?:\d{2}[ -]?\d{2}|\d{4})\b`)},
	{TypeEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	// Cyrillic: full Surname Name Patronymic, then Surname I.I. forms.
	// No \b anchors here: Go's \b is ASCII-only and never fires next to
	// Cyrillic letters.
	{TypeName, regexp.MustCompile(`[А-ЯЁ][а-яё]+\s+[А-ЯЁ][а-яё]+\s+[А-ЯЁ][а-яё]*(?:вич|вна|ична|улы|кызы)`)},
	{TypeName, regexp.MustCompile(`[А-ЯЁ][а-яё]+\s+[А-ЯЁ]\.\s?[А-ЯЁ]\.`)},
	{TypeName, regexp.MustCompile(`[А-ЯЁ]\.\s?[А-ЯЁ]\.\s?[А-ЯЁ][а-яё]+`)},
	// Latin: "Last, First", "F. Last", then plain "First Last".
	{TypeName, regexp.MustCompile(`\b[A-Z][a-z]+,\s+[A-Z][a-z]+\b`)},
	{TypeName, regexp.MustCompile(`\b[A-Z]\.\s?[A-Z][a-z]+\b`)},
	{TypeName, regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`)},
}

// Spans matching these are never treated as PII: dates and amounts must
// survive anonymization verbatim.
var preservePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\b\d{1,2}[./-]\d{1,2}[./-]\d{2,4}\b`),
	regexp.MustCompile(`\b\d+(?:[ ,.]\d{3})*(?:[.,]\d{1,2})?\s?(?:KZT|USD|EUR|RUB|тг|₸|₽|\$|€)`),
	regexp.MustCompile(`[$€₸₽£]\s?\d+(?:[ ,.]\d{3})*(?:[.,]\d{1,2})?`),
}

// Anonymizer applies the detection rules plus a preserve list of known
// merchant brand strings.
type Anonymizer struct {
	brands []*regexp.Regexp
}

// New creates an anonymizer. Brand names (typically from the pattern
// registry) are preserved and never redacted.
func New(brandNames ...string) *Anonymizer {
	a := &Anonymizer{}
	for _, name := range brandNames {
		if strings.TrimSpace(name) == "" {
			continue
		}
		a.brands = append(a.brands, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(name)+`\b`))
	}
	return a
}

type span struct {
	start, end int
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// Anonymize replaces detected PII with typed placeholders. Text with no
// PII is returned unmodified with an empty mapping.
func (a *Anonymizer) Anonymize(text string) Result {
	protected := a.protectedSpans(text)

	var accepted []Detection
	var acceptedSpans []span

	for _, r := range defaultRules {
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			candidate := span{loc[0], loc[1]}
			if overlapsAny(candidate, protected) || overlapsAny(candidate, acceptedSpans) {
				continue
			}
			acceptedSpans = append(acceptedSpans, candidate)
			accepted = append(accepted, Detection{
				Type:     r.name,
				Original: text[loc[0]:loc[1]],
				Start:    loc[0],
				End:      loc[1],
			})
		}
	}

	if len(accepted) == 0 {
		return Result{Text: text, Mapping: Mapping{}}
	}

	// Number placeholders per type in text order so output is stable.
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	counters := make(map[string]int)
	mapping := make(Mapping, len(accepted))
	for i := range accepted {
		counters[accepted[i].Type]++
		accepted[i].Placeholder = fmt.Sprintf("[%s_%d]", accepted[i].Type, counters[accepted[i].Type])
		mapping[accepted[i].Placeholder] = accepted[i].Original
	}

	// Splice right to left so earlier offsets stay valid.
	out := text
	for i := len(accepted) - 1; i >= 0; i-- {
		d := accepted[i]
		out = out[:d.Start] + d.Placeholder + out[d.End:]
	}

	return Result{Text: out, Mapping: mapping, Detections: accepted}
}

// Deanonymize restores originals for every placeholder present in the
// text. Placeholders absent from the mapping are left as-is: partial
// restoration is preferable to total failure.
func Deanonymize(text string, mapping Mapping) string {
	for placeholder, original := range mapping {
		text = strings.ReplaceAll(text, placeholder, original)
	}
	return text
}

func (a *Anonymizer) protectedSpans(text string) []span {
	var spans []span
	for _, re := range preservePatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	for _, re := range a.brands {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	return spans
}

func overlapsAny(s span, spans []span) bool {
	for _, o := range spans {
		if s.overlaps(o) {
			return true
		}
	}
	return false
}
