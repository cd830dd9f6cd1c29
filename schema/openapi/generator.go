// Package openapi renders a tracking plan as an OpenAPI document. Every
// tracked type becomes a component schema; tracked members link to their
// components and every member carries an x-tracking extension with its
// resolved kind and exclusion reason.
package openapi

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	track "github.com/goliatone/go-tracking"
)

// Generator renders plans with a fixed configuration. It is safe for
// concurrent use.
type Generator struct {
	config generatorConfig
}

// NewGenerator constructs a generator.
func NewGenerator(opts ...GeneratorOption) *Generator {
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Generator{config: cfg}
}

// Generate renders plan as an OpenAPI document map.
func (g *Generator) Generate(plan track.Plan) (map[string]any, error) {
	if plan.Root == "" {
		return nil, fmt.Errorf("openapi: plan has no root type")
	}
	if _, ok := plan.Type(plan.Root); !ok {
		return nil, fmt.Errorf("openapi: plan does not describe root type %q", plan.Root)
	}

	registry := newComponentRegistry()
	for _, t := range plan.Types {
		registry.register(t.Name)
	}
	schemas := make(map[string]any, len(plan.Types))
	for _, t := range plan.Types {
		schema, err := g.typeSchema(t, registry)
		if err != nil {
			return nil, err
		}
		schemas[registry.register(t.Name)] = schema
	}
	return newOpenAPIDocumentBuilder(g.config, registry, plan.Root, schemas).build()
}

// GenerateJSON renders plan as indented JSON.
func (g *Generator) GenerateJSON(plan track.Plan) ([]byte, error) {
	document, err := g.Generate(plan)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(document, "", "  ")
}

// Generate renders the plan AsTrackable would use for T.
func Generate[T any](reg *track.Registry, trackOpts []track.Option, opts ...GeneratorOption) (map[string]any, error) {
	plan, err := track.Explain[T](reg, trackOpts...)
	if err != nil {
		return nil, err
	}
	return NewGenerator(opts...).Generate(plan)
}

func (g *Generator) typeSchema(t track.TypePlan, registry *componentRegistry) (map[string]any, error) {
	properties := make(map[string]any, len(t.Properties))
	for _, p := range t.Properties {
		schema, err := g.propertySchema(t.Name, p, registry)
		if err != nil {
			return nil, err
		}
		properties[p.Name] = schema
	}

	extension := map[string]any{"type": t.Name}
	if t.GoType != "" {
		extension["goType"] = t.GoType
	}
	if t.Excluded {
		extension["excluded"] = true
		extension["reason"] = t.Reason
	}
	return map[string]any{
		"type":        "object",
		"properties":  properties,
		"x-tracking":  extension,
		"description": fmt.Sprintf("Tracked form of %s.", t.Name),
	}, nil
}

func (g *Generator) propertySchema(owner string, p track.PropertyPlan, registry *componentRegistry) (map[string]any, error) {
	var schema map[string]any
	ref, linked := registry.reference(p.Type)
	switch {
	case p.Tracked() && p.Kind == track.KindComplex && linked:
		schema = map[string]any{
			"allOf":    []any{map[string]any{"$ref": ref}},
			"nullable": true,
		}
	case p.Tracked() && p.Kind == track.KindCollection && linked:
		schema = map[string]any{
			"type":  "array",
			"items": map[string]any{"$ref": ref},
		}
	default:
		built, err := schemaForType(p.GoType, map[reflect.Type]bool{})
		if err != nil {
			return nil, fmt.Errorf("openapi: %s.%s: %w", owner, p.Name, err)
		}
		schema = built
		if p.Declared == track.KindCollection {
			schema = map[string]any{"type": "array", "items": built}
		}
	}

	extension := map[string]any{"kind": p.Kind.String()}
	if p.Declared != p.Kind {
		extension["declared"] = p.Declared.String()
	}
	if p.Reason != "" {
		extension["reason"] = p.Reason
	}
	if g.config.includeRules && len(p.Rules) > 0 {
		extension["rules"] = append([]string{}, p.Rules...)
	}
	schema["x-tracking"] = extension
	return schema, nil
}

// schemaForType describes a Go type. A nil type, as left by a plan decoded
// from JSON, yields the empty schema.
func schemaForType(rt reflect.Type, seen map[reflect.Type]bool) (map[string]any, error) {
	if rt == nil {
		return map[string]any{}, nil
	}
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}

	switch rt.Kind() {
	case reflect.Interface:
		return map[string]any{}, nil
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return map[string]any{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Struct:
		if rt == reflect.TypeOf(time.Time{}) {
			return map[string]any{
				"type":   "string",
				"format": "date-time",
			}, nil
		}
		return schemaForStruct(rt, seen)
	case reflect.Map:
		if rt.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key type %s unsupported", rt.Key())
		}
		values, err := schemaForType(rt.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"type":                 "object",
			"additionalProperties": values,
		}, nil
	case reflect.Slice, reflect.Array:
		if rt.Kind() == reflect.Slice && rt.Elem().Kind() == reflect.Uint8 {
			return map[string]any{
				"type":   "string",
				"format": "byte",
			}, nil
		}
		items, err := schemaForType(rt.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"type":  "array",
			"items": items,
		}, nil
	default:
		return map[string]any{
			"type":   "string",
			"format": fmt.Sprintf("go:%s", rt.String()),
		}, nil
	}
}

func schemaForStruct(rt reflect.Type, seen map[reflect.Type]bool) (map[string]any, error) {
	if seen[rt] {
		return map[string]any{"type": "object"}, nil
	}
	seen[rt] = true
	defer delete(seen, rt)

	properties := map[string]any{}
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" {
			tagName := strings.Split(tag, ",")[0]
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}

		child, err := schemaForType(field.Type, seen)
		if err != nil {
			return nil, err
		}
		properties[name] = child
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
	}, nil
}
