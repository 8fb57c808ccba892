// Package core implements the organism engine: the message pump, its
// scheduler and workers, the ingress air-lock, core-namespace handling, and
// the optional introspection HTTP server.
package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dullfig/xml-pipeline/internal/core/config"
	"github.com/dullfig/xml-pipeline/internal/core/envelope"
	"github.com/dullfig/xml-pipeline/internal/core/handlers"
	"github.com/dullfig/xml-pipeline/internal/core/ids"
	"github.com/dullfig/xml-pipeline/internal/core/logging"
	"github.com/dullfig/xml-pipeline/internal/core/registry"
	"github.com/dullfig/xml-pipeline/internal/core/threads"
)

// metadataRepairFixes is the watermill metadata key carrying the air-lock's
// applied fixes, semicolon-joined.
const metadataRepairFixes = "repair_fixes"

// OrganismDependencies holds optional collaborators. Leave fields nil to run
// without them.
type OrganismDependencies struct {
	// Completer is handed to agent handlers through their context.
	Completer handlers.Completer
}

// Organism wires the registry, thread registry, scheduler, pump workers, and
// the in-memory ingress/egress bus into one running engine.
type Organism struct {
	Conf   *config.Config
	Logger logging.ServiceLogger

	registry *registry.Registry
	threads  *threads.Registry
	sched    *scheduler
	metrics  *metrics
	tracer   trace.Tracer

	bus       *gochannel.GoChannel
	completer handlers.Completer

	agentSemMu sync.Mutex
	agentSems  map[string]chan struct{}

	cancelMu   sync.Mutex
	cancelSeq  int
	cancels    map[string]map[int]context.CancelFunc

	httpServersMu sync.Mutex
	httpServers   map[int]*http.ServeMux

	wg sync.WaitGroup
}

// NewOrganism constructs an engine for the supplied configuration. Register
// listeners on the returned Organism before calling Start.
func NewOrganism(conf *config.Config, log logging.ServiceLogger, deps OrganismDependencies) *Organism {
	conf.Normalize()
	log.Info("creating organism", logging.LogFields{
		"organism":   conf.OrganismName,
		"scheduling": conf.ThreadScheduling,
	})

	o := &Organism{
		Conf:      conf,
		Logger:    log,
		threads:   threads.NewRegistry(),
		sched:     newScheduler(strings.ToLower(conf.ThreadScheduling), conf.FairnessWindow),
		tracer:    otel.Tracer("xmlpipeline"),
		completer: deps.Completer,
		agentSems: map[string]chan struct{}{},
		cancels:   map[string]map[int]context.CancelFunc{},
	}

	regOpts := []registry.Option{registry.WithLogger(log)}
	if conf.SchemaCacheDir != "" {
		regOpts = append(regOpts, registry.WithSchemaStore(registry.NewSchemaStore(conf.SchemaCacheDir)))
	}
	o.registry = registry.New(regOpts...)

	if conf.MetricsEnabled {
		o.metrics = newMetrics(conf.OrganismName, o.threads.Len)
	}

	o.bus = gochannel.NewGoChannel(gochannel.Config{}, logging.NewWatermillAdapter(log))
	return o
}

// Register installs a listener. Safe while the organism is running.
func (o *Organism) Register(reg registry.Registration) (*registry.Listener, error) {
	return o.registry.Register(reg)
}

// Unregister removes a listener; no new routing resolves to it afterwards.
func (o *Organism) Unregister(name string) error {
	return o.registry.Unregister(name)
}

// Registry exposes read access to the listener catalog.
func (o *Organism) Registry() *registry.Registry {
	return o.registry
}

// Deliver is the ingress air-lock: raw bytes are repaired and canonicalized
// before anything else touches them. Unrecoverable input is logged and
// dropped with an error to the caller; recoverable fixes travel with the
// message so a later validation failure can report them.
func (o *Organism) Deliver(ctx context.Context, raw []byte) error {
	doc, fixes, err := envelope.Repair(raw)
	if err != nil {
		o.Logger.Error("dropping unrepairable ingress bytes", err, logging.LogFields{"bytes": len(raw)})
		return err
	}
	canonical, err := envelope.Canonicalize(doc.Root())
	if err != nil {
		o.Logger.Error("dropping uncanonicalizable ingress bytes", err, nil)
		return err
	}

	msg := message.NewMessage(ids.CreateULID(), canonical)
	if len(fixes) > 0 {
		msg.Metadata.Set(metadataRepairFixes, strings.Join(fixes, "; "))
	}
	return o.bus.Publish(o.Conf.IngressTopic, msg)
}

// Egress subscribes to the organism's outbound topic. External transports
// consume from here.
func (o *Organism) Egress(ctx context.Context) (<-chan *message.Message, error) {
	return o.bus.Subscribe(ctx, o.Conf.EgressTopic)
}

// Start runs the pump until the context is cancelled: one consumer feeding
// the scheduler and a bounded worker pool draining it. On shutdown a goodbye
// notice is published to egress.
func (o *Organism) Start(ctx context.Context) error {
	o.startIntrospectionServer()

	ingress, err := o.bus.Subscribe(ctx, o.Conf.IngressTopic)
	if err != nil {
		return fmt.Errorf("xmlpipeline: subscribing to ingress: %w", err)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for msg := range ingress {
			o.processIngress(ctx, msg)
			msg.Ack()
		}
	}()

	for i := 0; i < o.Conf.MaxConcurrentDispatch; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				job, err := o.sched.next()
				if err != nil {
					return
				}
				o.dispatch(ctx, job)
			}
		}()
	}

	<-ctx.Done()
	o.publishGoodbye()
	o.sched.close()
	if err := o.bus.Close(); err != nil {
		o.Logger.Error("closing bus", err, nil)
	}
	o.wg.Wait()
	return nil
}

// publishGoodbye tells external consumers the organism is going away.
func (o *Organism) publishGoodbye() {
	el := envelope.NewGoodbye("connection-closed").Element()
	env := &envelope.Envelope{From: envelope.SenderSystem, Payload: el}
	canonical, err := env.Bytes()
	if err != nil {
		o.Logger.Error("rendering goodbye", err, nil)
		return
	}
	msg := message.NewMessage(ids.CreateULID(), canonical)
	if err := o.bus.Publish(o.Conf.EgressTopic, msg); err != nil {
		o.Logger.Error("publishing goodbye", err, nil)
	}
}

// acquireAgentSlot bounds concurrent invocations of one agent. Returns a
// release func.
func (o *Organism) acquireAgentSlot(name string) func() {
	limit := o.Conf.MaxConcurrentPerAgent
	if limit <= 0 {
		return func() {}
	}
	o.agentSemMu.Lock()
	sem, ok := o.agentSems[name]
	if !ok {
		sem = make(chan struct{}, limit)
		o.agentSems[name] = sem
	}
	o.agentSemMu.Unlock()

	sem <- struct{}{}
	return func() { <-sem }
}

// trackCancel registers a dispatch's cancel func under its thread so subtree
// pruning can stop in-flight work. Returns an untrack func.
func (o *Organism) trackCancel(threadID string, cancel context.CancelFunc) func() {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	o.cancelSeq++
	seq := o.cancelSeq
	set, ok := o.cancels[threadID]
	if !ok {
		set = map[int]context.CancelFunc{}
		o.cancels[threadID] = set
	}
	set[seq] = cancel
	return func() {
		o.cancelMu.Lock()
		defer o.cancelMu.Unlock()
		delete(set, seq)
		if len(set) == 0 {
			delete(o.cancels, threadID)
		}
	}
}

// cancelThreads stops queued and in-flight work for the given thread ids.
func (o *Organism) cancelThreads(threadIDs []string) {
	if len(threadIDs) == 0 {
		return
	}
	o.sched.drop(threadIDs)
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	for _, id := range threadIDs {
		for _, cancel := range o.cancels[id] {
			cancel()
		}
		delete(o.cancels, id)
	}
}
