package track

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotRegistered is returned when a tracked member refers to a type
	// without a descriptor in the registry.
	ErrNotRegistered = errors.New("track: type not registered")
	// ErrUnknownProperty is returned by Get/Set for names missing from the
	// descriptor.
	ErrUnknownProperty = errors.New("track: unknown property")
	// ErrTypeMismatch is returned when a value cannot be assigned to a member.
	ErrTypeMismatch = errors.New("track: value type mismatch")
	// ErrExcludedType is returned when AsTrackable is asked to wrap a type
	// that the policy excludes.
	ErrExcludedType = errors.New("track: type is excluded from tracking")
	// ErrIndexOutOfRange is returned by collection operations on bad indexes.
	ErrIndexOutOfRange = errors.New("track: index out of range")
	// ErrNoEvaluator is returned when a rule needs an engine that is not
	// available in this build.
	ErrNoEvaluator = errors.New("track: evaluator not configured")
)

// WritebackError reports a property whose original value could not be
// restored during RejectChanges. The ledger entry is kept so the reject can
// be retried.
type WritebackError struct {
	Type     string
	ID       string
	Property string
	Err      error
}

func (e *WritebackError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("track: restore %s.%s (id=%s): %v", e.Type, e.Property, e.ID, e.Err)
}

func (e *WritebackError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RuleError captures rule engine metadata alongside the originating error.
type RuleError struct {
	Engine string
	Expr   string
	Target string
	Err    error
}

func (e *RuleError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("track: %s rule %s target=%s: %v", e.Engine, describeExpression(e.Expr), e.Target, e.Err)
}

func (e *RuleError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEngineError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var ruleErr *RuleError
	if errors.As(err, &ruleErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "track:") {
		return err
	}
	return fmt.Errorf("track: %s engine: %w", engine, err)
}

func wrapRuleError(engine, expr, target string, err error) error {
	if err == nil {
		return nil
	}

	var ruleErr *RuleError
	if errors.As(err, &ruleErr) {
		if ruleErr.Engine == "" {
			ruleErr.Engine = engine
		}
		if ruleErr.Expr == "" {
			ruleErr.Expr = expr
		}
		if ruleErr.Target == "" {
			ruleErr.Target = target
		}
		return ruleErr
	}

	return &RuleError{
		Engine: engine,
		Expr:   expr,
		Target: target,
		Err:    err,
	}
}

func propertyError(sentinel error, typeName, property string) error {
	return fmt.Errorf("%w: %s.%s", sentinel, typeName, property)
}
