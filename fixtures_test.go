package track

import (
	"errors"
	"testing"
)

type Order struct {
	OrderID                int
	CustomerNumber         string
	LeadID                 int
	Lead                   *Lead
	Leads                  []*Lead
	Address                *Address
	DoNotTrackAddress      *Address
	OrderDetails           []*OrderDetail
	DoNotTrackOrderDetails []*OrderDetail
	Tags                   []string
}

type Lead struct {
	LeadID int
	Name   string
}

type Address struct {
	Street string
	City   string
	State  string
}

type OrderDetail struct {
	ItemNo   string
	Quantity int
	Order    *Order
}

func orderDescriptor() *Descriptor[Order] {
	return Describe(
		Field("OrderID", func(o *Order) int { return o.OrderID }, func(o *Order, v int) { o.OrderID = v }),
		Field("CustomerNumber", func(o *Order) string { return o.CustomerNumber }, func(o *Order, v string) { o.CustomerNumber = v }),
		Field("LeadID", func(o *Order) int { return o.LeadID }, func(o *Order, v int) { o.LeadID = v }).DoNotTrack(),
		Ref("Lead", func(o *Order) *Lead { return o.Lead }, func(o *Order, v *Lead) { o.Lead = v }),
		List("Leads", func(o *Order) []*Lead { return o.Leads }, func(o *Order, v []*Lead) { o.Leads = v }),
		Ref("Address", func(o *Order) *Address { return o.Address }, func(o *Order, v *Address) { o.Address = v }),
		Ref("DoNotTrackAddress", func(o *Order) *Address { return o.DoNotTrackAddress }, func(o *Order, v *Address) { o.DoNotTrackAddress = v }).DoNotTrack(),
		List("OrderDetails", func(o *Order) []*OrderDetail { return o.OrderDetails }, func(o *Order, v []*OrderDetail) { o.OrderDetails = v }),
		List("DoNotTrackOrderDetails", func(o *Order) []*OrderDetail { return o.DoNotTrackOrderDetails }, func(o *Order, v []*OrderDetail) { o.DoNotTrackOrderDetails = v }).DoNotTrack(),
		Value("Tags", func(o *Order) []string { return o.Tags }, func(o *Order, v []string) { o.Tags = v }, nil),
	)
}

func leadDescriptor() *Descriptor[Lead] {
	return Describe(
		Field("LeadID", func(l *Lead) int { return l.LeadID }, func(l *Lead, v int) { l.LeadID = v }),
		Field("Name", func(l *Lead) string { return l.Name }, func(l *Lead, v string) { l.Name = v }),
	).DoNotTrack()
}

func addressDescriptor() *Descriptor[Address] {
	return Describe(
		Field("Street", func(a *Address) string { return a.Street }, func(a *Address, v string) { a.Street = v }),
		Field("City", func(a *Address) string { return a.City }, func(a *Address, v string) { a.City = v }),
		Field("State", func(a *Address) string { return a.State }, func(a *Address, v string) { a.State = v }).DoNotTrack(),
	)
}

func orderDetailDescriptor() *Descriptor[OrderDetail] {
	return Describe(
		Field("ItemNo", func(d *OrderDetail) string { return d.ItemNo }, func(d *OrderDetail, v string) { d.ItemNo = v }),
		Field("Quantity", func(d *OrderDetail) int { return d.Quantity }, func(d *OrderDetail, v int) { d.Quantity = v },
			Check(func(v int) error {
				if v < 0 {
					return errors.New("quantity must not be negative")
				}
				return nil
			})),
		Ref("Order", func(d *OrderDetail) *Order { return d.Order }, func(d *OrderDetail, v *Order) { d.Order = v }),
	)
}

func newTestRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	reg := NewRegistry(opts...)
	if err := Register(reg, orderDescriptor()); err != nil {
		t.Fatalf("register order: %v", err)
	}
	if err := Register(reg, leadDescriptor()); err != nil {
		t.Fatalf("register lead: %v", err)
	}
	if err := Register(reg, addressDescriptor()); err != nil {
		t.Fatalf("register address: %v", err)
	}
	if err := Register(reg, orderDetailDescriptor()); err != nil {
		t.Fatalf("register order detail: %v", err)
	}
	return reg
}

func sampleOrder() *Order {
	return &Order{
		OrderID:        1,
		CustomerNumber: "C-100",
		LeadID:         2,
		Lead:           &Lead{LeadID: 2, Name: "Ada"},
		Leads:          []*Lead{{LeadID: 3, Name: "Grace"}, {LeadID: 4, Name: "Edsger"}},
		Address:        &Address{Street: "1 Main St", City: "Springfield", State: "IL"},
		DoNotTrackAddress: &Address{
			Street: "9 Side St",
			City:   "Shelbyville",
			State:  "IL",
		},
		OrderDetails: []*OrderDetail{
			{ItemNo: "A-1", Quantity: 1},
			{ItemNo: "B-2", Quantity: 2},
		},
		DoNotTrackOrderDetails: []*OrderDetail{{ItemNo: "Z-9", Quantity: 9}},
		Tags:                   []string{"priority"},
	}
}

func trackOrder(t *testing.T, reg *Registry, src *Order, opts ...Option) *Object[Order] {
	t.Helper()
	order, err := AsTrackable(reg, src, opts...)
	if err != nil {
		t.Fatalf("AsTrackable: %v", err)
	}
	return order
}

func mustGet(t *testing.T, getter interface{ Get(string) (any, error) }, name string) any {
	t.Helper()
	v, err := getter.Get(name)
	if err != nil {
		t.Fatalf("Get(%q): %v", name, err)
	}
	return v
}

func mustSet(t *testing.T, setter interface{ Set(string, any) error }, name string, value any) {
	t.Helper()
	if err := setter.Set(name, value); err != nil {
		t.Fatalf("Set(%q): %v", name, err)
	}
}

func addressOf(t *testing.T, order *Object[Order]) *Object[Address] {
	t.Helper()
	address, err := Lookup[*Object[Address]](order, "Address")
	if err != nil || address == nil {
		t.Fatalf("expected tracked address, got %v (err=%v)", address, err)
	}
	return address
}

func detailsOf(t *testing.T, order *Object[Order]) *Collection[OrderDetail] {
	t.Helper()
	details, ok := CollectionOf[OrderDetail](mustGet(t, order, "OrderDetails"))
	if !ok {
		t.Fatalf("expected tracked order details")
	}
	return details
}

type eventLog struct {
	properties []PropertyChange
	statuses   []StatusChange
}

func record(ct ChangeTrackable) *eventLog {
	log := &eventLog{}
	ct.OnPropertyChanged(func(e PropertyChange) { log.properties = append(log.properties, e) })
	ct.OnStatusChanged(func(e StatusChange) { log.statuses = append(log.statuses, e) })
	return log
}

func (l *eventLog) propertyNames() []string {
	var out []string
	for _, e := range l.properties {
		out = append(out, e.Property)
	}
	return out
}
