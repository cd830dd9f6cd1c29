package track

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-tracking/pkg/activity"
)

// Status classifies the lifecycle of a tracked instance.
type Status int

const (
	// Unchanged is the initial status and the status after accept or reject.
	Unchanged Status = iota
	// Added marks an instance inserted into a tracked collection.
	Added
	// Deleted marks an instance removed from a tracked collection.
	Deleted
	// Changed means the instance or one of its tracked children has changes.
	Changed
)

func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

func (s Status) explicit() bool {
	return s == Added || s == Deleted
}

// Kind identifies how a member participates in tracking.
type Kind int

const (
	// KindScalar members are compared by value and recorded in the ledger.
	KindScalar Kind = iota
	// KindComplex members hold a pointer to another registered type.
	KindComplex
	// KindCollection members hold a slice of pointers to a registered type.
	KindCollection
	// KindExcluded is the resolved kind of any member opted out of tracking.
	KindExcluded
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindComplex:
		return "complex"
	case KindCollection:
		return "collection"
	case KindExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// PropertyChange is delivered to property-changed subscribers.
type PropertyChange struct {
	ID       string
	Type     string
	Property string
}

// StatusChange is delivered to status-changed subscribers.
type StatusChange struct {
	ID   string
	Type string
	Old  Status
	New  Status
}

// ChangeTrackable is the tracking capability exposed by tracked objects and
// tracked collections. Values of excluded members never implement it.
type ChangeTrackable interface {
	ID() string
	TypeName() string
	Status() Status
	ChangedProperties() []string
	OriginalValue(property string) (any, bool)
	AcceptChanges()
	RejectChanges() error
	OnPropertyChanged(fn func(PropertyChange)) *Subscription
	OnStatusChanged(fn func(StatusChange)) *Subscription
}

// Option configures a single AsTrackable or Explain call.
type Option func(*config)

type config struct {
	policy        *Policy
	logger        Logger
	activityHooks activity.Hooks
	channel       string
	actorID       string
	tenantID      string
	clock         func() time.Time
}

func applyOptions(reg *Registry, opts []Option) config {
	cfg := config{}
	if reg != nil {
		cfg.policy = reg.policy
		cfg.logger = reg.logger
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.policy == nil {
		cfg.policy = NewPolicy()
	}
	if cfg.logger == nil {
		cfg.logger = noopLogger{}
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}
	return cfg
}

// WithPolicy sets the exclusion policy consulted while wrapping. It replaces
// the registry default for this call only.
func WithPolicy(policy *Policy) Option {
	return func(cfg *config) {
		if policy != nil {
			cfg.policy = policy
		}
	}
}

// WithActivityChannel overrides the channel stamped on mirrored activity
// events. Defaults to "tracking".
func WithActivityChannel(channel string) Option {
	return func(cfg *config) {
		cfg.channel = channel
	}
}

// WithActivityActor stamps the acting user and tenant on mirrored activity
// events.
func WithActivityActor(actorID, tenantID string) Option {
	return func(cfg *config) {
		cfg.actorID = actorID
		cfg.tenantID = tenantID
	}
}

// WithClock overrides the time source used for log durations and event
// timestamps.
func WithClock(clock func() time.Time) Option {
	return func(cfg *config) {
		cfg.clock = clock
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus returns the status with the given name.
func ParseStatus(name string) (Status, error) {
	for _, s := range []Status{Unchanged, Added, Deleted, Changed} {
		if s.String() == strings.ToLower(strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("track: unknown status %q", name)
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind returns the kind with the given name.
func ParseKind(name string) (Kind, error) {
	for _, k := range []Kind{KindScalar, KindComplex, KindCollection, KindExcluded} {
		if k.String() == strings.ToLower(strings.TrimSpace(name)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("track: unknown kind %q", name)
}
