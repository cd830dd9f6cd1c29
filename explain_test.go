package track

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestExplainResolvesReachableTypes(t *testing.T) {
	reg := newTestRegistry(t)
	plan, err := Explain[Order](reg)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}

	if plan.Root != "Order" {
		t.Fatalf("unexpected root %q", plan.Root)
	}
	var names []string
	for _, typ := range plan.Types {
		names = append(names, typ.Name)
	}
	if !reflect.DeepEqual(names, []string{"Order", "Address", "OrderDetail"}) {
		t.Fatalf("unexpected types %v", names)
	}

	order, _ := plan.Type("Order")
	reasons := map[string]string{
		"OrderID":           "",
		"LeadID":            "member marked",
		"Lead":              "type marked",
		"Leads":             "type marked",
		"DoNotTrackAddress": "member marked",
	}
	for name, want := range reasons {
		prop, ok := order.Property(name)
		if !ok {
			t.Fatalf("missing property %s", name)
		}
		if prop.Reason != want {
			t.Fatalf("%s: expected reason %q, got %q", name, want, prop.Reason)
		}
		if prop.Tracked() != (want == "") {
			t.Fatalf("%s: unexpected tracked flag", name)
		}
	}
	leads, _ := order.Property("Leads")
	if leads.Declared != KindCollection || leads.Type != "Lead" {
		t.Fatalf("expected declared collection of Lead, got %+v", leads)
	}
	tags, _ := order.Property("Tags")
	if tags.Type != "[]string" || tags.Kind != KindScalar {
		t.Fatalf("unexpected Tags plan %+v", tags)
	}
	if _, ok := order.Property("Missing"); ok {
		t.Fatalf("expected missing property to report false")
	}
	if _, ok := plan.Type("Lead"); ok {
		t.Fatalf("excluded types are not expanded")
	}
}

func TestExplainDescriptorsFlattenPaths(t *testing.T) {
	reg := newTestRegistry(t)
	plan, err := Explain[Order](reg)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}

	var paths []string
	excluded := map[string]bool{}
	for _, d := range plan.Descriptors() {
		paths = append(paths, d.Path)
		excluded[d.Path] = d.Excluded
	}
	want := []string{
		"OrderID",
		"CustomerNumber",
		"LeadID",
		"Lead",
		"Leads",
		"Address",
		"Address.Street",
		"Address.City",
		"Address.State",
		"DoNotTrackAddress",
		"OrderDetails[]",
		"OrderDetails[].ItemNo",
		"OrderDetails[].Quantity",
		"OrderDetails[].Order",
		"DoNotTrackOrderDetails",
		"Tags",
	}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("unexpected paths\n got: %v\nwant: %v", paths, want)
	}
	if !excluded["Address.State"] || excluded["Address.City"] {
		t.Fatalf("unexpected exclusion flags %v", excluded)
	}

	if got := (Plan{}).Descriptors(); len(got) != 0 {
		t.Fatalf("expected no descriptors for empty plan, got %v", got)
	}
}

func TestExplainHonoursPolicyAndRules(t *testing.T) {
	reg := newTestRegistry(t)
	if err := Register(reg, paymentDescriptor()); err != nil {
		t.Fatalf("register: %v", err)
	}

	plan, err := Explain[Order](reg, WithPolicy(NewPolicy().ExcludeType("Address")))
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if _, ok := plan.Type("Address"); ok {
		t.Fatalf("policy-excluded type must not be expanded")
	}
	order, _ := plan.Type("Order")
	address, _ := order.Property("Address")
	if address.Reason != "policy type" {
		t.Fatalf("expected policy reason, got %q", address.Reason)
	}

	payments, err := Explain[Payment](reg)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	amount, _ := payments.Types[0].Property("Amount")
	if !reflect.DeepEqual(amount.Rules, []string{"value >= 0"}) {
		t.Fatalf("expected rules in plan, got %v", amount.Rules)
	}

	leads, err := Explain[Lead](reg)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !leads.Types[0].Excluded || leads.Types[0].Reason != "type marked" {
		t.Fatalf("expected excluded root, got %+v", leads.Types[0])
	}

	if _, err := Explain[Invoice](reg); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if _, err := Explain[Order](nil); err == nil {
		t.Fatalf("expected error for nil registry")
	}
}

func TestPlanJSONUsesKindNames(t *testing.T) {
	reg := newTestRegistry(t)
	plan, err := Explain[Order](reg)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	payload, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, fragment := range []string{`"root":"Order"`, `"kind":"excluded"`, `"declared":"collection"`, `"reason":"member marked"`} {
		if !strings.Contains(string(payload), fragment) {
			t.Fatalf("expected %s in %s", fragment, payload)
		}
	}

	var decoded Plan
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Descriptors()) != len(plan.Descriptors()) {
		t.Fatalf("expected decoded plan to flatten the same way")
	}
}

func TestRegistryRegistration(t *testing.T) {
	reg := newTestRegistry(t)
	if got := reg.Types(); !reflect.DeepEqual(got, []string{"Address", "Lead", "Order", "OrderDetail"}) {
		t.Fatalf("unexpected types %v", got)
	}

	if err := Register(reg, Describe[Invoice]().Named("Order")); err == nil {
		t.Fatalf("expected duplicate type name to fail")
	}
	dup := Describe(
		Field("Total", func(i *Invoice) int { return i.Total }, func(i *Invoice, v int) { i.Total = v }),
		Field("Total", func(i *Invoice) int { return i.Total }, func(i *Invoice, v int) { i.Total = v }),
	)
	if err := Register(reg, dup); err == nil || !strings.Contains(err.Error(), "duplicate member") {
		t.Fatalf("expected duplicate member error, got %v", err)
	}
	missing := Describe(Field[Invoice, int]("Total", nil, nil))
	if err := Register(reg, missing); err == nil {
		t.Fatalf("expected missing accessor error")
	}
	if err := Register[Invoice](reg, nil); err == nil {
		t.Fatalf("expected nil descriptor error")
	}
	bad := Describe(
		Field("Total", func(i *Invoice) int { return i.Total }, func(i *Invoice, v int) { i.Total = v }).Rule("value >="),
	)
	if err := Register(reg, bad); err == nil {
		t.Fatalf("expected rule compile error")
	}

	if err := Register(reg, invoiceDescriptor().Named("Bill")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg, invoiceDescriptor().Named("Receipt")); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if got := reg.Types(); !reflect.DeepEqual(got, []string{"Address", "Lead", "Order", "OrderDetail", "Receipt"}) {
		t.Fatalf("expected re-registration to replace the name, got %v", got)
	}
	invoice, err := AsTrackable(reg, &Invoice{Number: "R-1"})
	if err != nil || invoice.TypeName() != "Receipt" {
		t.Fatalf("expected named type, got %v (%v)", invoice, err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected MustRegister to panic")
		}
	}()
	MustRegister[Invoice](reg, nil)
}

func TestDescriptorWithCopy(t *testing.T) {
	reg := NewRegistry()
	copies := 0
	desc := invoiceDescriptor().WithCopy(func(src *Invoice) *Invoice {
		copies++
		dst := *src
		dst.Number = strings.ToUpper(dst.Number)
		return &dst
	})
	MustRegister(reg, desc)

	invoice := MustTrack(reg, &Invoice{Number: "inv-1"})
	if copies != 1 || invoice.Value().Number != "INV-1" {
		t.Fatalf("expected custom copy, got %d %q", copies, invoice.Value().Number)
	}
}
