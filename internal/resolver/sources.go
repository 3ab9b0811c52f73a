package resolver

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

type aliasSet struct {
	top      []string
	payload  []string
	custom   []string
	validate func(string) bool
	// customValidate overrides validate for custom-field aliases.
	customValidate func(string) bool
	extract        func(any) (string, bool)
	// trailing sources inserted between the custom aliases and the fallback.
	trailing []Source
}

const (
	// DescriptionSentinel is the description of last resort.
	DescriptionSentinel = "No description available."
	// TitleSentinel is the title of last resort.
	TitleSentinel = "Educational Activity"

	fallbackDiscipline = "General"
	fallbackSchoolYear = "Elementary School"
	fallbackTheme      = "Open theme"
	fallbackObjectives = "Learning objectives to be defined by the teacher."
	fallbackLevel      = "Intermediate"
	fallbackMinutes    = "30"
)

var aliases = map[Category]aliasSet{
	Title: {
		top:      []string{"titulo", "personalizedTitle", "title"},
		payload:  []string{"titulo", "title", "personalizedTitle"},
		custom:   []string{"titulo", "Título", "title"},
		validate: longerThan(3),
		trailing: []Source{{Name: "payload.theme", Extract: payloadKey("theme", scalarString), Validate: longerThan(3)}},
	},
	Description: {
		top:            []string{"descricao", "personalizedDescription", "description"},
		payload:        []string{"descricao", "description", "personalizedDescription"},
		custom:         []string{"descricao", "Descrição", "description"},
		validate:       longerThan(10),
		customValidate: longerThan(5),
		trailing:       []Source{{Name: "payload.objectives", Extract: payloadKey("objectives", scalarString), Validate: longerThan(15)}},
	},
	Type: {
		top:      []string{"tipo", "type", "activityType"},
		payload:  []string{"tipo", "type"},
		validate: notEmpty,
	},
	Discipline: {
		top:      []string{"disciplina", "subject", "materia"},
		payload:  []string{"disciplina", "subject", "materia"},
		custom:   []string{"disciplina", "Disciplina", "subject"},
		validate: notEmpty,
	},
	SchoolYear: {
		top:      []string{"schoolYear", "anoEscolar", "anoSerie"},
		payload:  []string{"schoolYear", "anoEscolar", "anoSerie"},
		custom:   []string{"anoEscolar", "Ano Escolar", "schoolYear"},
		validate: notEmpty,
	},
	Theme: {
		top:      []string{"theme", "tema"},
		payload:  []string{"theme", "tema"},
		custom:   []string{"tema", "Tema", "theme"},
		validate: notEmpty,
	},
	Objectives: {
		top:      []string{"objectives", "objetivos"},
		payload:  []string{"objectives", "objetivos"},
		custom:   []string{"objetivos", "Objetivos", "objectives"},
		validate: notEmpty,
	},
	Level: {
		top:      []string{"level", "nivel", "difficultyLevel"},
		payload:  []string{"level", "nivel", "difficultyLevel"},
		custom:   []string{"nivel", "Nível", "level"},
		validate: notEmpty,
	},
	EstimatedTime: {
		top:      []string{"estimatedTime", "tempo_estimado", "timeEstimated"},
		payload:  []string{"estimatedTime", "tempo_estimado", "timeEstimated"},
		custom:   []string{"tempo_estimado", "Tempo Estimado", "estimatedTime"},
		validate: positiveInt,
		extract:  leadingInt,
	},
}

var classified = func() map[string]struct{} {
	out := map[string]struct{}{}
	for _, set := range aliases {
		for _, k := range set.top {
			out[k] = struct{}{}
		}
		for _, k := range set.payload {
			out[k] = struct{}{}
		}
	}
	return out
}()

// IsAlias reports whether a top-level key is consumed by some category.
func IsAlias(key string) bool {
	_, ok := classified[key]
	return ok
}

// defaultSources builds the ordered source list for c, highest priority first.
// The fallback generator is appended by the Resolver.
func defaultSources(c Category) []Source {
	set := aliases[c]
	extract := set.extract
	if extract == nil {
		extract = scalarString
	}
	customValidate := set.customValidate
	if customValidate == nil {
		customValidate = set.validate
	}

	var list []Source
	for _, k := range set.top {
		list = append(list, Source{Name: k, Extract: topKey(k, extract), Validate: set.validate})
	}
	for _, k := range set.payload {
		list = append(list, Source{Name: "payload." + k, Extract: payloadKey(k, extract), Validate: set.validate})
	}
	for _, k := range set.custom {
		list = append(list, Source{Name: "customFields." + k, Extract: customKey(k, extract), Validate: customValidate})
	}
	list = append(list, set.trailing...)

	// fallback takes priority 1; everything declared above it ranks higher.
	for i := range list {
		list[i].Priority = len(list) - i + 1
	}
	return list
}

func topKey(key string, extract func(any) (string, bool)) func(View) (string, bool) {
	return func(v View) (string, bool) {
		raw, ok := v.Top[key]
		if !ok {
			return "", false
		}
		return extract(raw)
	}
}

func payloadKey(key string, extract func(any) (string, bool)) func(View) (string, bool) {
	return func(v View) (string, bool) {
		raw, ok := v.Payload[key]
		if !ok {
			return "", false
		}
		return extract(raw)
	}
}

func customKey(key string, extract func(any) (string, bool)) func(View) (string, bool) {
	return func(v View) (string, bool) {
		raw, ok := v.Custom[key]
		if !ok {
			return "", false
		}
		return extract(raw)
	}
}

func longerThan(n int) func(string) bool {
	return func(s string) bool {
		return utf8.RuneCountInString(strings.TrimSpace(s)) > n
	}
}

func notEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

func positiveInt(s string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return err == nil && n > 0
}

func always(string) bool { return true }

// CategoryOf returns the category whose top-level aliases include key.
func CategoryOf(key string) (Category, bool) {
	for _, c := range Categories() {
		for _, k := range aliases[c].top {
			if k == key {
				return c, true
			}
		}
	}
	return 0, false
}

// TopAliases lists the top-level keys read for c, highest priority first.
func TopAliases(c Category) []string {
	return append([]string(nil), aliases[c].top...)
}
