package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func testdataPath(t *testing.T, name string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime.Caller failed")
	}
	return filepath.Join(filepath.Dir(file), "testdata", name)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidatePrintsSummary(t *testing.T) {
	out, err := run(t, "validate", testdataPath(t, "orders.yaml"))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	for _, want := range []string{"is valid (engine expr)", "types: 1", "  - Lead", "  - Order.CustomerNumber", "rules: 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestValidateJSON(t *testing.T) {
	out, err := run(t, "validate", "--format", "json", testdataPath(t, "orders.yaml"))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	var summary policySummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	if summary.Engine != "expr" || len(summary.Members) != 1 || summary.Members[0] != "Order.CustomerNumber" {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestValidateErrors(t *testing.T) {
	if _, err := run(t, "validate", testdataPath(t, "broken.yaml")); err == nil || !strings.Contains(err.Error(), "unknown engine") {
		t.Fatalf("expected engine error, got %v", err)
	}
	if _, err := run(t, "validate", testdataPath(t, "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
	if _, err := run(t, "validate", "--format", "xml", testdataPath(t, "orders.yaml")); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := run(t, "validate"); err == nil {
		t.Fatalf("expected argument error")
	}
}

func TestCheckMembersAndTypes(t *testing.T) {
	file := testdataPath(t, "orders.yaml")
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"--owner", "Order", "--member", "CustomerNumber"}, "member Order.CustomerNumber: excluded"},
		{[]string{"--owner", "Order", "--member", "Lead", "--type", "Lead", "--kind", "complex"}, "member Order.Lead: excluded"},
		{[]string{"--owner", "Order", "--member", "Tags"}, "member Order.Tags: excluded"},
		{[]string{"--owner", "Order", "--member", "InternalNotes"}, "member Order.InternalNotes: excluded"},
		{[]string{"--owner", "Order", "--member", "OrderID", "--type", "int"}, "member Order.OrderID: tracked"},
		{[]string{"--kind", "type", "--type", "Audit"}, "type Audit: excluded"},
		{[]string{"--kind", "type", "--type", "Ledger"}, "type Ledger: excluded"},
		{[]string{"--kind", "type", "--type", "Order"}, "type Order: tracked"},
	}
	for _, tc := range cases {
		out, err := run(t, append([]string{"check", file}, tc.args...)...)
		if err != nil {
			t.Fatalf("check %v: %v", tc.args, err)
		}
		if strings.TrimSpace(out) != tc.want {
			t.Fatalf("check %v: expected %q, got %q", tc.args, tc.want, out)
		}
	}
}

func TestCheckErrors(t *testing.T) {
	file := testdataPath(t, "orders.yaml")
	for _, args := range [][]string{
		{"check", file, "--kind", "type"},
		{"check", file, "--owner", "Order"},
		{"check", file, "--owner", "Order", "--member", "X", "--kind", "bogus"},
		{"check", testdataPath(t, "broken.yaml"), "--owner", "Order", "--member", "X"},
	} {
		if _, err := run(t, args...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}
