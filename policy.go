package track

import (
	"fmt"
	"sort"
	"strings"
)

// Member identifies a declared member for exclusion decisions.
type Member struct {
	Owner string
	Name  string
	Type  string
	Kind  Kind
}

func (m Member) subject() map[string]any {
	return map[string]any{
		"owner":    m.Owner,
		"member":   m.Name,
		"typeName": m.Type,
		"kind":     m.Kind.String(),
	}
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// PolicyWithEvaluator sets the engine used by ExcludeWhen.
func PolicyWithEvaluator(e Evaluator) PolicyOption {
	return func(p *Policy) {
		p.evaluator = e
	}
}

// PolicyWithEngine selects a built-in engine by name for ExcludeWhen.
func PolicyWithEngine(name string) PolicyOption {
	return func(p *Policy) {
		p.engine = name
	}
}

// Policy decides which members and types are excluded from tracking. It is
// passed explicitly to AsTrackable (or set as a registry default) and is
// consulted once per member when a type plan is resolved.
type Policy struct {
	evaluator Evaluator
	engine    string
	functions *FunctionRegistry
	types     map[string]struct{}
	members   map[string]map[string]struct{}
	rules     []predicate
}

// NewPolicy returns an empty policy; it excludes nothing by itself.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		types:   map[string]struct{}{},
		members: map[string]map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// ExcludeType excludes every member whose declared type (or collection
// element type) has one of the given names.
func (p *Policy) ExcludeType(names ...string) *Policy {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			p.types[name] = struct{}{}
		}
	}
	return p
}

// ExcludeMember excludes the named members of owner.
func (p *Policy) ExcludeMember(owner string, names ...string) *Policy {
	owner = strings.TrimSpace(owner)
	set := p.members[owner]
	if set == nil {
		set = map[string]struct{}{}
		p.members[owner] = set
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return p
}

// ExcludeWhen adds a boolean rule. Member decisions bind owner, member,
// typeName and kind; type decisions bind typeName with kind "type".
func (p *Policy) ExcludeWhen(expr string) error {
	e, err := p.ruleEvaluator()
	if err != nil {
		return err
	}
	rule, err := compilePredicate(e, expr, memberVariables)
	if err != nil {
		return err
	}
	p.rules = append(p.rules, rule)
	return nil
}

func (p *Policy) ruleEvaluator() (Evaluator, error) {
	if p.evaluator != nil {
		return p.evaluator, nil
	}
	e, err := NewEvaluator(p.engine, nil, p.functions)
	if err != nil {
		return nil, err
	}
	p.evaluator = e
	return e, nil
}

// IsExcluded reports whether the policy excludes m, either directly, through
// its declared type or through a rule.
func (p *Policy) IsExcluded(m Member) (bool, error) {
	excluded, _, err := p.explainMember(m)
	return excluded, err
}

// IsExcludedType reports whether the policy excludes the named type.
func (p *Policy) IsExcludedType(name string) (bool, error) {
	excluded, _, err := p.explainType(name)
	return excluded, err
}

func (p *Policy) explainMember(m Member) (bool, string, error) {
	if p == nil {
		return false, "", nil
	}
	if set, ok := p.members[m.Owner]; ok {
		if _, ok := set[m.Name]; ok {
			return true, "policy member", nil
		}
	}
	if _, ok := p.types[m.Type]; ok {
		return true, "policy type", nil
	}
	matched, err := p.matchRules(m.subject(), m.Owner+"."+m.Name)
	if err != nil || !matched {
		return false, "", err
	}
	return true, "policy rule", nil
}

func (p *Policy) explainType(name string) (bool, string, error) {
	if p == nil {
		return false, "", nil
	}
	if _, ok := p.types[name]; ok {
		return true, "policy type", nil
	}
	subject := map[string]any{"owner": "", "member": "", "typeName": name, "kind": "type"}
	matched, err := p.matchRules(subject, name)
	if err != nil || !matched {
		return false, "", err
	}
	return true, "policy rule", nil
}

func (p *Policy) matchRules(subject map[string]any, target string) (bool, error) {
	for _, rule := range p.rules {
		ok, err := rule.test(RuleContext{Subject: subject, Target: target})
		if err != nil {
			return false, fmt.Errorf("track: policy: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Types returns the explicitly excluded type names, sorted.
func (p *Policy) Types() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.types))
	for name := range p.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Members returns the explicitly excluded members as "Owner.Name", sorted.
func (p *Policy) Members() []string {
	if p == nil {
		return nil
	}
	var out []string
	for owner, set := range p.members {
		for name := range set {
			out = append(out, owner+"."+name)
		}
	}
	sort.Strings(out)
	return out
}

// Rules returns the rule expressions in evaluation order.
func (p *Policy) Rules() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.rules))
	for _, rule := range p.rules {
		out = append(out, rule.expr)
	}
	return out
}
