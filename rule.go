package track

import (
	"fmt"
	"strings"
	"time"
)

// RuleContext carries the inputs bound into a rule expression. Subject keys
// are exposed as top-level variables.
type RuleContext struct {
	Subject map[string]any
	Args    map[string]any
	Now     *time.Time
	Target  string
}

func (ctx RuleContext) withDefaults() RuleContext {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Subject == nil {
		ctx.Subject = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	return *ctx.withDefaults().Now
}

func (ctx RuleContext) targetLabel() string {
	if ctx.Target != "" {
		return ctx.Target
	}
	return "unknown"
}

// Evaluator executes rule expressions. Policies use rules to exclude members
// and types; descriptors use them to validate writes.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct {
	variables []string
}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// CompileWithVariables declares subject variables ahead of evaluation so
// typed engines can check the expression at compile time.
func CompileWithVariables(names ...string) CompileOption {
	return compileOptionFunc(func(cfg *compileConfig) {
		cfg.variables = append(cfg.variables, names...)
	})
}

func applyCompileOptions(opts []CompileOption) compileConfig {
	cfg := compileConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyCompileOption(&cfg)
		}
	}
	return cfg
}

// Subject variable names bound by the engine.
var (
	memberVariables = []string{"owner", "member", "typeName", "kind"}
	valueVariables  = []string{"owner", "property", "value", "old"}
)

// predicate is a compiled boolean rule.
type predicate struct {
	engine string
	expr   string
	rule   CompiledRule
}

func compilePredicate(e Evaluator, expr string, variables []string) (predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return predicate{}, fmt.Errorf("track: rule expression must not be empty")
	}
	if e == nil {
		return predicate{}, ErrNoEvaluator
	}
	rule, err := e.Compile(expr, CompileWithVariables(variables...))
	if err != nil {
		return predicate{}, wrapRuleError(engineName(e), expr, "", err)
	}
	return predicate{engine: engineName(e), expr: expr, rule: rule}, nil
}

func (p predicate) test(ctx RuleContext) (bool, error) {
	out, err := p.rule.Evaluate(ctx)
	if err != nil {
		return false, wrapRuleError(p.engine, p.expr, ctx.targetLabel(), err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, wrapRuleError(p.engine, p.expr, ctx.targetLabel(), fmt.Errorf("rule returned %T, want bool", out))
	}
	return matched, nil
}

func engineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch e.(type) {
	case *exprEvaluator:
		return "expr"
	case *celEvaluator:
		return "cel"
	default:
		if jsEvaluatorAvailable() && isJSEvaluator(e) {
			return "js"
		}
		return "custom"
	}
}

// engines builds the built-in rule engines around a shared program cache
// and function registry.
var engines = map[string]func(ProgramCache, *FunctionRegistry) Evaluator{
	"expr": func(cache ProgramCache, fns *FunctionRegistry) Evaluator {
		return NewExprEvaluator(ExprWithProgramCache(cache), ExprWithFunctionRegistry(fns))
	},
	"cel": func(cache ProgramCache, fns *FunctionRegistry) Evaluator {
		return NewCELEvaluator(CELWithProgramCache(cache), CELWithFunctionRegistry(fns))
	},
	"js": func(cache ProgramCache, fns *FunctionRegistry) Evaluator {
		return NewJSEvaluator(JSWithProgramCache(cache), JSWithFunctionRegistry(fns))
	},
}

// NewEvaluator returns the engine registered under name: "expr" (default),
// "cel" or "js". The js engine needs the js_eval build tag.
func NewEvaluator(name string, cache ProgramCache, registry *FunctionRegistry) (Evaluator, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "expr"
	}
	build, ok := engines[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown engine %q", ErrNoEvaluator, name)
	}
	if e := build(cache, registry); e != nil {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s engine requires the js_eval build tag", ErrNoEvaluator, key)
}

// jsSettings holds what the goja engine shares with the others. It lives
// outside the build-tagged files so options compile either way.
type jsSettings struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// JSEvaluatorOption configures the goja engine.
type JSEvaluatorOption func(*jsSettings)

// JSWithProgramCache wires a ProgramCache into the goja engine.
func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return func(s *jsSettings) {
		s.cache = cache
	}
}

// JSWithFunctionRegistry wires a FunctionRegistry into the goja engine.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(s *jsSettings) {
		if registry != nil {
			s.registry = registry.Clone()
		}
	}
}
