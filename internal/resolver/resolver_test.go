package resolver

import (
	"fmt"
	"testing"
	"unicode/utf8"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/domain"
)

func TestResolvePrefersHigherPrioritySource(t *testing.T) {
	r := New()
	raw := map[string]any{
		"title":  "Lower priority title",
		"titulo": "Primary title",
		"dados":  map[string]any{"titulo": "Nested title"},
	}
	require.Equal(t, "Primary title", r.Resolve(raw, Title))
}

func TestResolveSkipsInvalidCandidates(t *testing.T) {
	r := New()
	raw := map[string]any{
		"titulo":      "ab",
		"description": "short",
		"dados":       map[string]any{"description": "A nested description that is long enough"},
	}
	require.Equal(t, "A nested description that is long enough", r.Resolve(raw, Description))
	require.NotEqual(t, "ab", r.Resolve(raw, Title))
}

func TestResolveReadsCustomFields(t *testing.T) {
	r := New()
	raw := map[string]any{
		"customFields": map[string]any{
			"Disciplina":     "Matemática",
			"Tempo Estimado": "45 minutos",
			"Descrição":      "Frações",
		},
	}
	require.Equal(t, "Matemática", r.Resolve(raw, Discipline))
	require.Equal(t, "45", r.Resolve(raw, EstimatedTime))
	require.Equal(t, "Frações", r.Resolve(raw, Description))
}

func TestResolveMissingAliasesYieldsValidFallbacks(t *testing.T) {
	r := New()
	for _, raw := range []any{nil, 42, "text", map[string]any{}, []any{1, 2}} {
		for _, c := range Categories() {
			value := r.Resolve(raw, c)
			require.NotEmpty(t, value, "category %s for %v", c, raw)
		}
		fields := r.ResolveAll(raw)
		require.Greater(t, len(fields.Description), 10)
		require.Greater(t, len(fields.Title), 3)
		require.Equal(t, 30, fields.EstimatedTime)
		require.Equal(t, GenericType, fields.Type)
	}
}

func TestResolveShortDescriptionFallsBack(t *testing.T) {
	r := New()
	value := r.Resolve(map[string]any{"description": "A"}, Description)
	require.NotEqual(t, "A", value)
	require.NotEqual(t, DescriptionSentinel, value)
	require.Contains(t, value, "educational activity")
}

func TestResolveRecoversFromPanickingExtractor(t *testing.T) {
	r := New(WithSources(Theme,
		Source{Priority: 10, Name: "boom", Extract: func(View) (string, bool) { panic("bad shape") }},
		Source{Priority: 5, Name: "ok", Extract: func(View) (string, bool) { return "Fractions", true }},
	))
	require.Equal(t, "Fractions", r.Resolve(map[string]any{}, Theme))
}

func TestResolveUsesLastResortWhenGeneratorPanics(t *testing.T) {
	panicking := Source{Priority: 1, Name: "fallback", Extract: func(View) (string, bool) { panic("generator") }}
	r := New(WithSources(Title, panicking), WithSources(Description, panicking))
	require.Equal(t, TitleSentinel, r.Resolve(map[string]any{}, Title))
	require.Equal(t, DescriptionSentinel, r.Resolve(map[string]any{}, Description))
}

func TestEqualPrioritiesKeepDeclarationOrder(t *testing.T) {
	r := New(WithSources(Level,
		Source{Priority: 5, Name: "first", Extract: func(View) (string, bool) { return "first", true }},
		Source{Priority: 5, Name: "second", Extract: func(View) (string, bool) { return "second", true }},
	))
	require.Equal(t, "first", r.Resolve(nil, Level))
}

func TestResolveAcceptsRecords(t *testing.T) {
	r := New()
	rec := domain.ActivityRecord{ID: "a1", Title: "Fractions quiz", Subject: "Math"}
	require.Equal(t, "Fractions quiz", r.Resolve(rec, Title))
	require.Equal(t, "Math", r.Resolve(&rec, Discipline))
}

func TestCategoryString(t *testing.T) {
	require.Equal(t, "schoolYear", SchoolYear.String())
	require.Equal(t, "category(42)", Category(42).String())
}

func TestFormatType(t *testing.T) {
	require.Equal(t, "Flash Cards", FormatType("flash-cards"))
	require.Equal(t, "Interactive Quiz", FormatType(" Quiz-Interativo "))
	require.Equal(t, "Mapa Conceitual", FormatType("mapa-conceitual"))
	require.Equal(t, "Educational Activity", FormatType(""))
	require.Equal(t, "Educational Activity", FormatType("ab"))
	require.Equal(t, "Educational Activity", FormatType("x"))
	require.Equal(t, "Educational Activity", FormatType("q-z"))
}

func TestShortUnknownTypeTitleStaysValid(t *testing.T) {
	r := New()
	for _, raw := range []map[string]any{
		{"type": "ab"},
		{"tipo": "x"},
		{"type": "q-z"},
	} {
		title := r.Resolve(raw, Title)
		require.Equal(t, "Educational Activity", title)
		require.Greater(t, utf8.RuneCountInString(title), 3)
	}
}

func TestIsAlias(t *testing.T) {
	require.True(t, IsAlias("titulo"))
	require.True(t, IsAlias("estimatedTime"))
	require.False(t, IsAlias("questions"))
}

func TestFallbackTextGolden(t *testing.T) {
	r := New()
	cases := map[string]map[string]any{
		"fallback_empty": {},
		"fallback_flash_cards": {
			"tipo":       "flash-cards",
			"tema":       "Photosynthesis",
			"disciplina": "Biology",
		},
		"fallback_unknown_type": {"type": "mapa-conceitual"},
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			fields := r.ResolveAll(raw)
			out := fmt.Sprintf("title: %s\ndescription: %s\n", fields.Title, fields.Description)
			g.Assert(t, name, []byte(out))
		})
	}
}

func TestCategoryOf(t *testing.T) {
	c, ok := CategoryOf("tema")
	require.True(t, ok)
	require.Equal(t, Theme, c)
	require.Contains(t, TopAliases(Theme), "theme")

	_, ok = CategoryOf("questions")
	require.False(t, ok)
}
