package resolver

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"example.com/activitysync/internal/logger"
)

// Category identifies one logical field of an activity record.
type Category int

const (
	Title Category = iota
	Description
	Type
	Discipline
	SchoolYear
	Theme
	Objectives
	Level
	EstimatedTime
)

var categoryNames = [...]string{
	Title:         "title",
	Description:   "description",
	Type:          "type",
	Discipline:    "discipline",
	SchoolYear:    "schoolYear",
	Theme:         "theme",
	Objectives:    "objectives",
	Level:         "level",
	EstimatedTime: "estimatedTime",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "category(" + strconv.Itoa(int(c)) + ")"
	}
	return categoryNames[c]
}

// Categories lists every category in declaration order.
func Categories() []Category {
	out := make([]Category, len(categoryNames))
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// Source is one candidate location for a category value.
type Source struct {
	Priority int
	Name     string
	Extract  func(View) (string, bool)
	Validate func(string) bool
}

// Fields holds one resolved value per category.
type Fields struct {
	Title         string
	Description   string
	Type          string
	Discipline    string
	SchoolYear    string
	Theme         string
	Objectives    string
	Level         string
	EstimatedTime int
}

// Resolver picks the canonical value of each category from a raw producer object.
type Resolver struct {
	log     *logger.Logger
	sources map[Category][]Source
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for extraction and validation diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(r *Resolver) {
		r.log = logger.OrNop(l)
	}
}

// WithSources replaces the source list of one category, fallback included.
func WithSources(c Category, sources ...Source) Option {
	return func(r *Resolver) {
		r.sources[c] = sortSources(sources)
	}
}

// New constructs a Resolver with the built-in alias tables.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		log:     logger.NewNop(),
		sources: make(map[Category][]Source, len(categoryNames)),
	}
	for _, c := range Categories() {
		list := defaultSources(c)
		list = append(list, Source{Priority: 1, Name: "fallback", Extract: r.fallbackFor(c), Validate: always})
		r.sources[c] = sortSources(list)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sortSources(in []Source) []Source {
	out := append([]Source(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Resolve returns the canonical value of c in raw. It never panics and never
// returns an empty string.
func (r *Resolver) Resolve(raw any, c Category) string {
	value, _ := r.resolve(NewView(raw), c)
	return value
}

// ResolveAll resolves every category of raw against a single classified view.
func (r *Resolver) ResolveAll(raw any) Fields {
	v := NewView(raw)
	value := func(c Category) string {
		s, _ := r.resolve(v, c)
		return s
	}
	minutes, err := strconv.Atoi(value(EstimatedTime))
	if err != nil || minutes <= 0 {
		minutes, _ = strconv.Atoi(fallbackMinutes)
	}
	return Fields{
		Title:         value(Title),
		Description:   value(Description),
		Type:          value(Type),
		Discipline:    value(Discipline),
		SchoolYear:    value(SchoolYear),
		Theme:         value(Theme),
		Objectives:    value(Objectives),
		Level:         value(Level),
		EstimatedTime: minutes,
	}
}

// resolve walks the sources of c; synthesized reports whether the fallback won.
func (r *Resolver) resolve(v View, c Category) (value string, synthesized bool) {
	for _, src := range r.sources[c] {
		candidate, ok := r.extract(src, v, c)
		if !ok {
			continue
		}
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if src.Validate != nil && !src.Validate(candidate) {
			r.log.Debug("resolver: candidate rejected", "category", c.String(), "source", src.Name)
			continue
		}
		return candidate, src.Name == "fallback"
	}
	return lastResort(c), true
}

func (r *Resolver) extract(src Source, v View, c Category) (value string, ok bool) {
	if src.Extract == nil {
		return "", false
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("resolver: extraction failed", "category", c.String(), "source", src.Name, "panic", fmt.Sprint(rec))
			value, ok = "", false
		}
	}()
	return src.Extract(v)
}

func (r *Resolver) fallbackFor(c Category) func(View) (string, bool) {
	switch c {
	case Title:
		return func(v View) (string, bool) {
			label := FormatType(r.value(v, Type))
			if theme, synthesized := r.resolve(v, Theme); !synthesized {
				return label + ": " + theme, true
			}
			return label, true
		}
	case Description:
		return func(v View) (string, bool) {
			return r.describe(v), true
		}
	default:
		static := staticFallback(c)
		return func(View) (string, bool) { return static, true }
	}
}

func (r *Resolver) value(v View, c Category) string {
	s, _ := r.resolve(v, c)
	return s
}

func (r *Resolver) describe(v View) string {
	var b strings.Builder
	b.WriteString("This is an educational activity")
	if activityType, synthesized := r.resolve(v, Type); !synthesized && activityType != GenericType {
		b.WriteString(" of type ")
		b.WriteString(FormatType(activityType))
	}
	if discipline, synthesized := r.resolve(v, Discipline); !synthesized {
		b.WriteString(" for the subject ")
		b.WriteString(discipline)
	}
	if theme, synthesized := r.resolve(v, Theme); !synthesized {
		b.WriteString(" focused on the theme \"")
		b.WriteString(theme)
		b.WriteString("\"")
	}
	b.WriteString(". It was designed to support teaching and learning with active methodologies.")
	return b.String()
}

func staticFallback(c Category) string {
	switch c {
	case Type:
		return GenericType
	case Discipline:
		return fallbackDiscipline
	case SchoolYear:
		return fallbackSchoolYear
	case Theme:
		return fallbackTheme
	case Objectives:
		return fallbackObjectives
	case Level:
		return fallbackLevel
	case EstimatedTime:
		return fallbackMinutes
	case Title:
		return TitleSentinel
	default:
		return DescriptionSentinel
	}
}

func lastResort(c Category) string {
	switch c {
	case Title:
		return TitleSentinel
	default:
		return staticFallback(c)
	}
}
