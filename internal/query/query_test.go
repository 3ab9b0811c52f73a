package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/domain"
)

func stored(subject string, minutes int, origin domain.Origin) domain.StoredRecord {
	return domain.StoredRecord{
		Record: domain.ActivityRecord{ID: "q1", Subject: subject, EstimatedTime: minutes, Type: "quiz-interativo"},
		Metadata: domain.StorageMetadata{
			Origin:    origin,
			CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestPredicateMatches(t *testing.T) {
	p, err := Compile(`subject == "Matemática" && estimatedTime > 20 && origin != "imported"`, nil)
	require.NoError(t, err)

	require.True(t, p.Match(stored("Matemática", 45, domain.OriginLocal)))
	require.False(t, p.Match(stored("Matemática", 15, domain.OriginLocal)))
	require.False(t, p.Match(stored("Matemática", 45, domain.OriginImported)))
	require.False(t, p.Match(stored("História", 45, domain.OriginLocal)))
}

func TestPredicateMetadataTimestamps(t *testing.T) {
	p, err := Compile(`updatedAt >= "2024-03-02" && activityType startsWith "quiz"`, nil)
	require.NoError(t, err)
	require.True(t, p.Match(stored("Ciências", 10, domain.OriginShared)))
}

func TestPredicateUnknownIdentifierIsNil(t *testing.T) {
	p, err := Compile(`missing == nil`, nil)
	require.NoError(t, err)
	require.True(t, p.Match(stored("Artes", 5, domain.OriginLocal)))
}

func TestCompileRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "   ", "subject ==", `"not a bool"`} {
		_, err := Compile(expr, nil)
		require.ErrorIs(t, err, ErrInvalidExpression, expr)
	}
}
