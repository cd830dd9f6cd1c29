package hydrate

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

type exclusionDocument struct {
	Engine  string         `json:"engine"`
	Types   []string       `json:"types"`
	Members []memberEntry  `json:"members"`
	Rules   []string       `json:"rules"`
	Extra   map[string]any `json:"extra,omitempty"`
}

type memberEntry struct {
	Owner string   `json:"owner"`
	Names []string `json:"names"`
}

func TestDecoderFromFixtures(t *testing.T) {
	fx := loadFixture(t, "hydrate_policy.json")

	for _, tc := range fx.Cases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			decoder := NewDecoder[exclusionDocument](buildOptions(tc)...)
			result, err := decoder.Decode(Context{Source: tc.Source, Format: tc.Format}, tc.Input)

			if tc.ExpectErr != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tc.ExpectErr)
				}
				if !strings.Contains(err.Error(), tc.ExpectErr) {
					t.Fatalf("expected error containing %q, got %v", tc.ExpectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			if !reflect.DeepEqual(tc.Expect, result) {
				t.Fatalf("decoded document mismatch:\nwant: %#v\n got: %#v", tc.Expect, result)
			}
		})
	}
}

func TestDecoderNilPayload(t *testing.T) {
	_, err := NewDecoder[exclusionDocument]().Decode(Context{Source: "policy.yaml"}, nil)
	if err == nil || !strings.Contains(err.Error(), "policy.yaml") {
		t.Fatalf("expected nil payload error naming the source, got %v", err)
	}
}

func TestDecoderDoesNotMutateInput(t *testing.T) {
	input := map[string]any{"types": []any{"Lead"}}
	decoder := NewDecoder[exclusionDocument](WithPreHook[exclusionDocument](func(_ Context, payload map[string]any) (map[string]any, error) {
		payload["types"] = []any{"Other"}
		return payload, nil
	}))
	if _, err := decoder.Decode(Context{}, input); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := input["types"].([]any)[0]; got != "Lead" {
		t.Fatalf("expected caller payload untouched, got %v", got)
	}
}

func TestContextLabel(t *testing.T) {
	cases := map[Context]string{
		{}:                                 "<inline>",
		{Source: "a.yaml"}:                 "a.yaml",
		{Format: "json"}:                   "json",
		{Source: "a.yaml", Format: "yaml"}: "a.yaml (yaml)",
	}
	for ctx, want := range cases {
		if got := ctx.label(); got != want {
			t.Fatalf("label(%+v) = %q, want %q", ctx, got, want)
		}
	}
}

func buildOptions(tc fixtureCase) []DecoderOption[exclusionDocument] {
	options := []DecoderOption[exclusionDocument]{}
	for _, optName := range tc.Options {
		switch optName {
		case "use_number":
			options = append(options, WithUseNumber[exclusionDocument]())
		case "disallow_unknown":
			options = append(options, WithDisallowUnknownFields[exclusionDocument]())
		}
	}
	for _, hookName := range tc.PreHooks {
		switch hookName {
		case "split_types":
			options = append(options, WithPreHook[exclusionDocument](splitTypesPreHook))
		}
	}
	for _, hookName := range tc.PostHooks {
		switch hookName {
		case "require_owner":
			options = append(options, WithPostHook[exclusionDocument](requireOwnerPostHook))
		}
	}
	return options
}

// splitTypesPreHook accepts "types: A, B" as shorthand for a list.
func splitTypesPreHook(_ Context, payload map[string]any) (map[string]any, error) {
	value, ok := payload["types"].(string)
	if !ok {
		return payload, nil
	}
	var types []any
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			types = append(types, part)
		}
	}
	payload["types"] = types
	return payload, nil
}

func requireOwnerPostHook(_ Context, doc *exclusionDocument) error {
	for _, member := range doc.Members {
		if member.Owner == "" {
			return errors.New("member entry without owner")
		}
	}
	return nil
}

type fixture struct {
	Description string        `json:"description"`
	Cases       []fixtureCase `json:"cases"`
}

type fixtureCase struct {
	Name      string            `json:"name"`
	Source    string            `json:"source"`
	Format    string            `json:"format"`
	Input     map[string]any    `json:"input"`
	Expect    exclusionDocument `json:"expect"`
	ExpectErr string            `json:"expectErr"`
	PreHooks  []string          `json:"preHooks"`
	PostHooks []string          `json:"postHooks"`
	Options   []string          `json:"options"`
}

func loadFixture(t *testing.T, name string) fixture {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("failed to locate fixture directory")
	}
	path := filepath.Join(filepath.Dir(filename), "..", "..", "testdata", name)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read hydrate fixture %q: %v", name, err)
	}
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		t.Fatalf("failed to unmarshal hydrate fixture %q: %v", name, err)
	}
	return fx
}
