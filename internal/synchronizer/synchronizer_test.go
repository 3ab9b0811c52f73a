package synchronizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/resolver"
)

func producerObject() map[string]any {
	return map[string]any{
		"id":     "act-1",
		"titulo": "Frações no cotidiano",
		"tipo":   "lista-exercicios",
		"dados": map[string]any{
			"descricao": "Lista com exercícios de frações aplicadas.",
			"questions": []any{"q1", "q2"},
			"shared":    "from dados",
		},
		"content": map[string]any{
			"shared": "from content",
		},
		"customFields": map[string]any{
			"Disciplina":     "Matemática",
			"Tempo Estimado": "50 minutos",
		},
		"difficulty": "hard",
	}
}

func TestSynchronizeResolvesAndConsolidates(t *testing.T) {
	s := New(nil, nil)
	rec := s.Synchronize(producerObject())

	require.Equal(t, "act-1", rec.ID)
	require.Equal(t, "Frações no cotidiano", rec.Title)
	require.Equal(t, "Lista com exercícios de frações aplicadas.", rec.Description)
	require.Equal(t, "lista-exercicios", rec.Type)
	require.Equal(t, "Matemática", rec.Subject)
	require.Equal(t, 50, rec.EstimatedTime)
	require.Equal(t, "from content", rec.Payload["shared"])
	require.Equal(t, "hard", rec.Payload["difficulty"])
	require.Equal(t, []any{"q1", "q2"}, rec.Payload["questions"])
	require.NotContains(t, rec.Payload, "titulo")
	require.NotContains(t, rec.Payload, "customFields")
	require.Equal(t, "Matemática", rec.CustomFields["Disciplina"])
}

func TestSynchronizeDoesNotAliasInput(t *testing.T) {
	s := New(nil, nil)
	raw := producerObject()
	rec := s.Synchronize(raw)
	rec.CustomFields["Disciplina"] = "changed"
	rec.Payload["questions"].([]any)[0] = "changed"

	require.Equal(t, "Matemática", raw["customFields"].(map[string]any)["Disciplina"])
	require.Equal(t, "q1", raw["dados"].(map[string]any)["questions"].([]any)[0])
}

func TestSynchronizeIsIdempotent(t *testing.T) {
	s := New(nil, nil)
	inputs := []any{
		producerObject(),
		map[string]any{},
		map[string]any{"description": "A"},
		map[string]any{"title": "ab", "customFields": map[string]any{"Descrição": "Frações"}},
		map[string]any{"tema": "Ciclo da água", "dados": map[string]any{"objectives": "Compreender as etapas do ciclo da água."}},
		"not an object",
		nil,
	}
	for _, raw := range inputs {
		first := s.Synchronize(raw)
		second := s.Synchronize(first.ToRaw())
		require.Equal(t, first, second, "input %v", raw)
	}
}

func TestSynchronizeShortDescriptionUsesFallback(t *testing.T) {
	s := New(nil, nil)
	rec := s.Synchronize(map[string]any{"id": "x", "description": "A"})
	require.NotEqual(t, "A", rec.Description)
	require.Greater(t, len(rec.Description), 10)
	require.True(t, s.Validate(rec).Valid)
}

func TestSynchronizeNonObject(t *testing.T) {
	s := New(nil, nil)
	rec := s.Synchronize(42)
	require.Empty(t, rec.ID)
	require.Equal(t, resolver.FormatType(resolver.GenericType), rec.Title)
	require.NotEmpty(t, rec.Description)
	require.Empty(t, rec.Payload)
}

func TestValidate(t *testing.T) {
	s := New(nil, nil)

	result := s.Validate(domain.ActivityRecord{ID: "a", Description: "A perfectly fine description"})
	require.True(t, result.Valid)
	require.Empty(t, result.Errors)

	result = s.Validate(domain.ActivityRecord{Description: resolver.DescriptionSentinel})
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 2)

	result = s.Validate(domain.ActivityRecord{ID: "a", Description: "short"})
	require.False(t, result.Valid)
}

func TestMergeRightBiased(t *testing.T) {
	s := New(nil, nil)
	existing := s.Synchronize(producerObject())

	merged := s.Merge(existing, map[string]any{
		"tema":         "Receitas",
		"title":        "Frações na cozinha",
		"dados":        map[string]any{"questions": []any{"q3"}, "extra": map[string]any{"a": 1}},
		"customFields": map[string]any{"Observação": "revisar"},
	})

	require.Equal(t, "act-1", merged.ID)
	require.Equal(t, "Frações na cozinha", merged.Title)
	require.Equal(t, "Receitas", merged.Theme)
	require.Equal(t, []any{"q3"}, merged.Payload["questions"])
	require.Equal(t, "from content", merged.Payload["shared"])
	require.Equal(t, map[string]any{"a": 1}, merged.Payload["extra"])
	require.Equal(t, "revisar", merged.CustomFields["Observação"])
	require.Equal(t, "Matemática", merged.CustomFields["Disciplina"])
}

func TestMergeUnionsNestedMaps(t *testing.T) {
	s := New(nil, nil)
	existing := s.Synchronize(map[string]any{
		"id":   "n1",
		"dados": map[string]any{"settings": map[string]any{"shuffle": true, "timer": 30}},
	})
	merged := s.Merge(existing, map[string]any{
		"data": map[string]any{"settings": map[string]any{"timer": 60}},
	})
	require.Equal(t, map[string]any{"shuffle": true, "timer": 60}, merged.Payload["settings"])
}

func TestMergeIsAssociativeOverDisjointFields(t *testing.T) {
	s := New(nil, nil)
	r := s.Synchronize(producerObject())
	a := map[string]any{"title": "Novo título da atividade", "dados": map[string]any{"x": 1}}
	b := map[string]any{"nivel": "Avançado", "customFields": map[string]any{"Tema": "Pizza"}}

	sequential := s.Merge(s.Merge(r, a), b)

	combined := map[string]any{}
	for k, v := range a {
		combined[k] = v
	}
	for k, v := range b {
		combined[k] = v
	}
	require.Equal(t, s.Merge(r, combined), sequential)
}

func TestIDOf(t *testing.T) {
	require.Equal(t, "a1", IDOf(map[string]any{"id": " a1 "}))
	require.Equal(t, "42", IDOf(map[string]any{"id": float64(42)}))
	require.Equal(t, "7", IDOf(map[string]any{"id": 7}))
	require.Empty(t, IDOf(map[string]any{"id": "  "}))
	require.Empty(t, IDOf(map[string]any{"id": true}))
	require.Empty(t, IDOf([]any{"id"}))
}
