package resolver

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GenericType is the type assigned when no producer names one.
const GenericType = "generic-activity"

var typeLabels = map[string]string{
	"flash-cards":        "Flash Cards",
	"quiz-interativo":    "Interactive Quiz",
	"lista-exercicios":   "Exercise List",
	"plano-aula":         "Lesson Plan",
	"sequencia-didatica": "Teaching Sequence",
	"quadro-interativo":  "Interactive Board",
	"mapa-mental":        "Mind Map",
	GenericType:          "Educational Activity",
}

var titleCaser = cases.Title(language.Und)

// Labels this short would not survive the title validator.
const minLabelRunes = 3

// FormatType turns an activity type slug into a display label. Unknown
// slugs are title-cased unless the result is too short to stand as a title.
func FormatType(activityType string) string {
	slug := strings.ToLower(strings.TrimSpace(activityType))
	if label, ok := typeLabels[slug]; ok {
		return label
	}
	if slug == "" {
		return typeLabels[GenericType]
	}
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	if len(words) == 0 {
		return typeLabels[GenericType]
	}
	label := titleCaser.String(strings.Join(words, " "))
	if utf8.RuneCountInString(label) <= minLabelRunes {
		return typeLabels[GenericType]
	}
	return label
}
