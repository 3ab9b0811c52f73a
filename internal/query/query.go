// Package query compiles record filter expressions such as
//
//	subject == "Matemática" && estimatedTime > 20 && origin != "imported"
//
// Identifiers are the canonical record fields plus origin, createdAt and
// updatedAt from the storage metadata. The record type is also exposed as
// activityType since type() is an expr builtin. Unknown identifiers evaluate
// to nil.
package query

import (
	"errors"
	"fmt"
	"strings"
	"time"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/logger"
)

// ErrInvalidExpression wraps compile failures.
var ErrInvalidExpression = errors.New("invalid filter expression")

const maxExpressionLength = 512

// Predicate is a compiled filter.
type Predicate struct {
	source  string
	program *exprvm.Program
	log     *logger.Logger
}

// Compile parses expression into a boolean Predicate.
func Compile(expression string, log *logger.Logger) (*Predicate, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidExpression)
	}
	if len(expression) > maxExpressionLength {
		return nil, fmt.Errorf("%w: longer than %d bytes", ErrInvalidExpression, maxExpressionLength)
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return &Predicate{source: expression, program: program, log: logger.OrNop(log)}, nil
}

// String returns the source expression.
func (p *Predicate) String() string { return p.source }

// Match evaluates the predicate against stored. Runtime errors count as no match.
func (p *Predicate) Match(stored domain.StoredRecord) bool {
	out, err := exprlang.Run(p.program, environment(stored))
	if err != nil {
		p.log.Debug("query: evaluation failed", "expression", p.source, "activity_id", stored.Record.ID, "error", err)
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func environment(stored domain.StoredRecord) map[string]any {
	env := stored.Record.ToRaw()
	env["activityType"] = stored.Record.Type
	env["origin"] = string(stored.Metadata.Origin)
	env["createdAt"] = stored.Metadata.CreatedAt.UTC().Format(time.RFC3339)
	env["updatedAt"] = stored.Metadata.UpdatedAt.UTC().Format(time.RFC3339)
	return env
}
