//go:build js_eval

package track

import (
	"strings"
	"testing"
)

func TestJSEngineRules(t *testing.T) {
	reg := NewRegistry(RegistryWithEngine("js"))
	if err := Register(reg, paymentDescriptor()); err != nil {
		t.Fatalf("register: %v", err)
	}
	payment := MustTrack(reg, &Payment{Amount: 1})
	if err := payment.Set("Amount", -5); err == nil || !strings.Contains(err.Error(), "rejected by rule") {
		t.Fatalf("expected rule rejection, got %v", err)
	}
	mustSet(t, payment, "Amount", 3)

	policy := NewPolicy(PolicyWithEngine("js"), PolicyWithFunctions(blockedFunctions(t)))
	if err := policy.ExcludeWhen(`member === "Tags" || call("blocked", member)`); err != nil {
		t.Fatalf("ExcludeWhen: %v", err)
	}
	for name, want := range map[string]bool{"Tags": true, "Secret": true, "OrderID": false} {
		got, err := policy.IsExcluded(Member{Owner: "Order", Name: name})
		if err != nil || got != want {
			t.Fatalf("%s: expected %v, got %v (%v)", name, want, got, err)
		}
	}
}
