package track

import (
	"fmt"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Function is a helper callable from policy and member rules. The expr engine
// binds it by name; every engine also reaches it through call(name, args).
type Function func(args ...any) (any, error)

// FunctionRegistry holds the helpers shared by the rules of a registry or
// policy. Names are matched case-insensitively.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: make(map[string]Function)}
}

// ruleIdentifiers are bound by the engines and cannot be shadowed.
var ruleIdentifiers = func() map[string]bool {
	names := map[string]bool{"now": true, "args": true, "call": true}
	for _, name := range append(append([]string(nil), memberVariables...), valueVariables...) {
		names[strings.ToLower(name)] = true
	}
	return names
}()

// Register stores fn under name. The name must be an identifier that does
// not clash with a rule variable or an earlier registration.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("track: function %q is nil", name)
	}
	if !isIdentifier(name) {
		return fmt.Errorf("track: function name %q is not an identifier", name)
	}
	key := strings.ToLower(name)
	if ruleIdentifiers[key] {
		return fmt.Errorf("track: function %q shadows a rule variable", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("track: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Has reports whether name is registered.
func (r *FunctionRegistry) Has(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[strings.ToLower(name)]
	return ok
}

// Clone returns a copy that can be extended without touching r.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{functions: make(map[string]Function, len(r.functions))}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call runs the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("track: no functions configured for %q", name)
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("track: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns the registered names, sorted.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MemberFunctions returns a registry preloaded with the name helpers policy
// files tend to need:
//
//	glob(member, "Internal*")
//	oneof(typeName, "Audit", "Lead")
//
// The result is a fresh registry; callers may register more helpers on it.
func MemberFunctions() *FunctionRegistry {
	fns := NewFunctionRegistry()
	fns.functions["glob"] = globMatch
	fns.functions["oneof"] = oneOf
	return fns
}

// globMatch reports whether a name matches a path.Match pattern.
func globMatch(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("track: glob wants 2 arguments, got %d", len(args))
	}
	name, ok := args[0].(string)
	pattern, ok2 := args[1].(string)
	if !ok || !ok2 {
		return nil, fmt.Errorf("track: glob wants strings, got %T and %T", args[0], args[1])
	}
	matched, err := path.Match(pattern, name)
	if err != nil {
		return nil, fmt.Errorf("track: glob %q: %w", pattern, err)
	}
	return matched, nil
}

// oneOf reports whether the first argument equals any of the others. A single
// list argument after the value is expanded, which is how CEL passes them.
func oneOf(args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("track: oneOf wants a value")
	}
	value, candidates := args[0], args[1:]
	if len(candidates) == 1 {
		if list, ok := candidates[0].([]any); ok {
			candidates = list
		}
	}
	for _, candidate := range candidates {
		if reflect.DeepEqual(value, candidate) {
			return true, nil
		}
	}
	return false, nil
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// RegistryWithFunctions makes functions callable from member rules compiled
// by the registry's engine.
func RegistryWithFunctions(functions *FunctionRegistry) RegistryOption {
	return func(r *Registry) {
		if functions == nil {
			return
		}
		r.functions = functions.Clone()
	}
}

// PolicyWithFunctions makes functions callable from policy rules.
func PolicyWithFunctions(functions *FunctionRegistry) PolicyOption {
	return func(p *Policy) {
		if functions == nil {
			return
		}
		p.functions = functions.Clone()
	}
}
