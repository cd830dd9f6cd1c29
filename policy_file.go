package track

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-tracking/internal/hydrate"
)

// PolicyFile is the document form of a Policy.
//
//	engine: cel
//	types: [Lead]
//	members:
//	  - owner: Order
//	    names: [LeadID]
//	rules:
//	  - member.startsWith("Internal")
type PolicyFile struct {
	Engine  string         `json:"engine,omitempty" yaml:"engine,omitempty"`
	Types   []string       `json:"types,omitempty" yaml:"types,omitempty"`
	Members []PolicyMember `json:"members,omitempty" yaml:"members,omitempty"`
	Rules   []string       `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// PolicyMember lists excluded members of one owner type.
type PolicyMember struct {
	Owner string   `json:"owner" yaml:"owner"`
	Names []string `json:"names" yaml:"names"`
}

// Build compiles the document into a Policy. Extra options are applied before
// the rules are compiled, so they can supply an evaluator or functions.
func (f PolicyFile) Build(opts ...PolicyOption) (*Policy, error) {
	all := make([]PolicyOption, 0, len(opts)+1)
	if f.Engine != "" {
		all = append(all, PolicyWithEngine(f.Engine))
	}
	all = append(all, opts...)

	policy := NewPolicy(all...)
	policy.ExcludeType(f.Types...)
	for _, member := range f.Members {
		policy.ExcludeMember(member.Owner, member.Names...)
	}
	for _, rule := range f.Rules {
		if err := policy.ExcludeWhen(rule); err != nil {
			return nil, err
		}
	}
	return policy, nil
}

// ParsePolicyFile decodes a YAML or JSON policy document. JSON is accepted
// because it is valid YAML. An empty document yields an empty PolicyFile.
func ParsePolicyFile(source string, data []byte) (PolicyFile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return PolicyFile{}, nil
	}
	var payload map[string]any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return PolicyFile{}, fmt.Errorf("track: parse policy %s: %w", sourceLabel(source), err)
	}
	if payload == nil {
		return PolicyFile{}, nil
	}
	decoder := hydrate.NewDecoder[PolicyFile](
		hydrate.WithPreHook[PolicyFile](expandTypeList),
		hydrate.WithDisallowUnknownFields[PolicyFile](),
		hydrate.WithPostHook[PolicyFile](validatePolicyFile),
	)
	doc, err := decoder.Decode(hydrate.Context{Source: source, Format: formatOf(source)}, payload)
	if err != nil {
		return PolicyFile{}, fmt.Errorf("track: %w", err)
	}
	return doc, nil
}

// ParsePolicy decodes data and builds the Policy it describes.
func ParsePolicy(source string, data []byte, opts ...PolicyOption) (*Policy, error) {
	doc, err := ParsePolicyFile(source, data)
	if err != nil {
		return nil, err
	}
	return doc.Build(opts...)
}

// LoadPolicyFile reads and builds the policy stored at path.
func LoadPolicyFile(path string, opts ...PolicyOption) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("track: read policy: %w", err)
	}
	return ParsePolicy(path, data, opts...)
}

// expandTypeList accepts "types: Lead, Audit" as shorthand for a list.
func expandTypeList(_ hydrate.Context, payload map[string]any) (map[string]any, error) {
	raw, ok := payload["types"].(string)
	if !ok {
		return payload, nil
	}
	var types []any
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			types = append(types, part)
		}
	}
	payload["types"] = types
	return payload, nil
}

func validatePolicyFile(_ hydrate.Context, doc *PolicyFile) error {
	switch strings.ToLower(strings.TrimSpace(doc.Engine)) {
	case "", "expr", "cel", "js":
	default:
		return fmt.Errorf("unknown engine %q", doc.Engine)
	}
	for i, name := range doc.Types {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("types[%d] is empty", i)
		}
	}
	for i, member := range doc.Members {
		if strings.TrimSpace(member.Owner) == "" {
			return fmt.Errorf("members[%d] has no owner", i)
		}
		if len(member.Names) == 0 {
			return fmt.Errorf("members[%d] (%s) lists no names", i, member.Owner)
		}
	}
	for i, rule := range doc.Rules {
		if strings.TrimSpace(rule) == "" {
			return fmt.Errorf("rules[%d] is empty", i)
		}
	}
	return nil
}

func formatOf(source string) string {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

func sourceLabel(source string) string {
	if source == "" {
		return "<inline>"
	}
	return source
}
