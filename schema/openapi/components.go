package openapi

import (
	"fmt"
	"regexp"
)

// componentRegistry assigns one component name per tracked type name.
type componentRegistry struct {
	names     map[string]string
	usedNames map[string]struct{}
}

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{
		names:     map[string]string{},
		usedNames: map[string]struct{}{},
	}
}

func (r *componentRegistry) register(typeName string) string {
	if name, ok := r.names[typeName]; ok {
		return name
	}
	name := r.uniqueName(typeName)
	r.names[typeName] = name
	return name
}

func (r *componentRegistry) reference(typeName string) (string, bool) {
	name, ok := r.names[typeName]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("#/components/schemas/%s", name), true
}

func (r *componentRegistry) uniqueName(name string) string {
	safe := sanitizeComponentName(name)
	if safe == "" {
		safe = "Schema"
	}
	if _, exists := r.usedNames[safe]; !exists {
		r.usedNames[safe] = struct{}{}
		return safe
	}
	suffix := 1
	for {
		candidate := fmt.Sprintf("%s%d", safe, suffix)
		if _, exists := r.usedNames[candidate]; !exists {
			r.usedNames[candidate] = struct{}{}
			return candidate
		}
		suffix++
	}
}

var componentNameRegexp = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

func sanitizeComponentName(name string) string {
	name = componentNameRegexp.ReplaceAllString(name, "_")
	name = trimUnderscores(name)
	if name == "" {
		return ""
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

func trimUnderscores(input string) string {
	start := 0
	for start < len(input) && input[start] == '_' {
		start++
	}
	end := len(input)
	for end > start && input[end-1] == '_' {
		end--
	}
	return input[start:end]
}
