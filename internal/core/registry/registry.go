// Package registry owns the authoritative listener catalog: registration,
// root-tag routing lookups, and the derived artifacts (schema, example,
// prompt fragment) materialized once per listener.
package registry

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	errspkg "github.com/dullfig/xml-pipeline/internal/core/errors"
	"github.com/dullfig/xml-pipeline/internal/core/handlers"
	"github.com/dullfig/xml-pipeline/internal/core/logging"
)

// Registration is the controller-supplied spec for a new listener.
type Registration struct {
	// Name is the unique dot-segmented identifier, e.g. "calculator.add".
	Name string

	// Description is required prose; it seeds the prompt fragment.
	Description string

	// Prototype is a pointer to the zero value of the payload struct.
	Prototype any

	Handler handlers.HandlerFunc

	// IsAgent forces a globally unique root tag and populates OwnName in
	// dispatch metadata.
	IsAgent bool

	// Peers lists the listener names this listener may forward to.
	Peers []string

	// Broadcast permits sharing a root tag with other broadcast listeners of
	// identical payload shape.
	Broadcast bool

	// Timeout overrides the configured default handler timeout when positive.
	Timeout time.Duration
}

// Listener is a registered capability with its materialized artifacts.
type Listener struct {
	Name        string
	Description string
	IsAgent     bool
	Peers       []string
	Broadcast   bool
	Timeout     time.Duration

	// RootTag is derived as lower(name) + "." + lower(payload type name).
	RootTag string

	Payload *PayloadType
	Handler handlers.HandlerFunc

	Schema            string
	Example           string
	PromptFragment    string
	UsageInstructions string
}

// AllowsPeer reports whether the listener may forward to target. Non-agent
// listeners without a declared peer set are unconstrained; an agent without
// one may forward to no other listener.
func (l *Listener) AllowsPeer(target string) bool {
	if len(l.Peers) == 0 {
		return !l.IsAgent
	}
	for _, peer := range l.Peers {
		if peer == target {
			return true
		}
	}
	return false
}

// Registry maps listener names and derived root tags to listener records.
// Reads are lock-free against an immutable snapshot swapped on every write,
// so a dispatch observes one consistent catalog.
type Registry struct {
	mu    sync.Mutex
	state atomic.Pointer[catalog]

	store  *SchemaStore
	logger logging.ServiceLogger
}

type catalog struct {
	byName map[string]*Listener
	byRoot map[string][]*Listener
}

// Option configures a Registry.
type Option func(*Registry)

// WithSchemaStore persists synthesized schemas to disk at registration.
func WithSchemaStore(store *SchemaStore) Option {
	return func(r *Registry) { r.store = store }
}

// WithLogger attaches a logger for registration events.
func WithLogger(logger logging.ServiceLogger) Option {
	return func(r *Registry) { r.logger = logger }
}

// New builds an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{logger: logging.NopLogger()}
	r.state.Store(&catalog{byName: map[string]*Listener{}, byRoot: map[string][]*Listener{}})
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates the spec, materializes the derived artifacts, and
// installs the listener. On any error the catalog is unchanged.
func (r *Registry) Register(reg Registration) (*Listener, error) {
	if reg.Name == "" {
		return nil, errspkg.ErrListenerNameRequired
	}
	if reg.Description == "" {
		return nil, errspkg.ErrDescriptionRequired
	}
	if reg.Handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	if reg.IsAgent && reg.Broadcast {
		return nil, errspkg.ErrAgentBroadcast
	}

	payload, err := Describe(reg.Prototype)
	if err != nil {
		return nil, err
	}
	rootTag := DeriveRootTag(reg.Name, payload)

	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.state.Load()

	if _, exists := state.byName[reg.Name]; exists {
		return nil, errspkg.ErrNameCollision
	}
	if existing := state.byRoot[rootTag]; len(existing) > 0 {
		if reg.IsAgent || existing[0].IsAgent {
			return nil, errspkg.ErrAgentRootTagShared
		}
		if !reg.Broadcast || !existing[0].Broadcast {
			return nil, errspkg.ErrRootTagCollision
		}
		if !SameShape(payload, existing[0].Payload) {
			return nil, errspkg.ErrBroadcastShapeMismatch
		}
	}
	for _, peer := range reg.Peers {
		if peer == reg.Name {
			continue
		}
		if _, known := state.byName[peer]; !known {
			return nil, errspkg.ErrUnknownPeer
		}
	}

	listener := &Listener{
		Name:        reg.Name,
		Description: reg.Description,
		IsAgent:     reg.IsAgent,
		Peers:       append([]string(nil), reg.Peers...),
		Broadcast:   reg.Broadcast,
		Timeout:     reg.Timeout,
		RootTag:     rootTag,
		Payload:     payload,
		Handler:     reg.Handler,
	}
	listener.Schema = SynthesizeXSD(rootTag, payload)
	listener.Example = SynthesizeExample(rootTag, payload)
	listener.PromptFragment = PromptFragment(reg.Name, reg.Description, rootTag, payload, listener.Example)
	listener.UsageInstructions = buildUsageInstructions(state, listener)

	if r.store != nil {
		if err := r.store.Put(listener.Name, listener.Schema); err != nil {
			return nil, err
		}
	}

	next := state.clone()
	next.byName[listener.Name] = listener
	next.byRoot[rootTag] = append(append([]*Listener(nil), next.byRoot[rootTag]...), listener)
	r.state.Store(next)

	r.logger.Info("registered listener", logging.LogFields{
		"listener": listener.Name,
		"root_tag": listener.RootTag,
		"is_agent": listener.IsAgent,
	})
	return listener, nil
}

// Unregister removes the named listener. Subsequent root-tag lookups miss;
// in-flight chain entries naming it fail on response routing instead.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.state.Load()

	listener, exists := state.byName[name]
	if !exists {
		return errspkg.ErrListenerNotFound
	}

	next := state.clone()
	delete(next.byName, name)
	remaining := next.byRoot[listener.RootTag][:0:0]
	for _, l := range next.byRoot[listener.RootTag] {
		if l.Name != name {
			remaining = append(remaining, l)
		}
	}
	if len(remaining) == 0 {
		delete(next.byRoot, listener.RootTag)
	} else {
		next.byRoot[listener.RootTag] = remaining
	}
	r.state.Store(next)

	r.logger.Info("unregistered listener", logging.LogFields{"listener": name})
	return nil
}

// LookupByRoot returns every listener registered under the root tag. The
// slice is shared and must not be mutated.
func (r *Registry) LookupByRoot(rootTag string) []*Listener {
	return r.state.Load().byRoot[rootTag]
}

// LookupByName returns the named listener, or nil.
func (r *Registry) LookupByName(name string) *Listener {
	return r.state.Load().byName[name]
}

// LookupByValue returns a listener whose payload type matches the dynamic
// type of value. This resolves the root tag for handler return values on the
// re-injection path.
func (r *Registry) LookupByValue(value any) *Listener {
	t := reflect.TypeOf(value)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return nil
	}
	state := r.state.Load()
	for _, name := range sortedKeys(state.byName) {
		if state.byName[name].Payload.GoType == t {
			return state.byName[name]
		}
	}
	return nil
}

// Names returns every registered listener name in sorted order.
func (r *Registry) Names() []string {
	state := r.state.Load()
	names := make([]string, 0, len(state.byName))
	for name := range state.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the current listeners in name order for introspection.
func (r *Registry) Snapshot() []*Listener {
	state := r.state.Load()
	out := make([]*Listener, 0, len(state.byName))
	for _, name := range sortedKeys(state.byName) {
		out = append(out, state.byName[name])
	}
	return out
}

// buildUsageInstructions concatenates the prompt fragments of the listener's
// peers in sorted order and appends the response-semantics warning.
func buildUsageInstructions(state *catalog, listener *Listener) string {
	if len(listener.Peers) == 0 {
		return responseWarning
	}
	peers := append([]string(nil), listener.Peers...)
	sort.Strings(peers)

	var b strings.Builder
	for _, peer := range peers {
		if peer == listener.Name {
			continue
		}
		if target, ok := state.byName[peer]; ok {
			b.WriteString(target.PromptFragment)
			b.WriteString("\n")
		}
	}
	b.WriteString(responseWarning)
	return b.String()
}

// DeriveRootTag computes the payload root element name for a listener.
func DeriveRootTag(name string, pt *PayloadType) string {
	return strings.ToLower(name) + "." + pt.Name
}

func (c *catalog) clone() *catalog {
	next := &catalog{
		byName: make(map[string]*Listener, len(c.byName)+1),
		byRoot: make(map[string][]*Listener, len(c.byRoot)+1),
	}
	for name, l := range c.byName {
		next.byName[name] = l
	}
	for root, ls := range c.byRoot {
		next.byRoot[root] = ls
	}
	return next
}

func sortedKeys(m map[string]*Listener) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
