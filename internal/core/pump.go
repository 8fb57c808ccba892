package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/beevik/etree"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dullfig/xml-pipeline/internal/core/envelope"
	errspkg "github.com/dullfig/xml-pipeline/internal/core/errors"
	"github.com/dullfig/xml-pipeline/internal/core/handlers"
	"github.com/dullfig/xml-pipeline/internal/core/ids"
	"github.com/dullfig/xml-pipeline/internal/core/logging"
	"github.com/dullfig/xml-pipeline/internal/core/pipeline"
	"github.com/dullfig/xml-pipeline/internal/core/registry"
)

// genericSystemMessage is the externally-visible text of every SystemError.
// Internal causes are logged, never surfaced.
const genericSystemMessage = "processing failed"

// dispatchJob is one scheduled handler invocation: a validated, typed payload
// bound to a target listener under a resolved thread.
type dispatchJob struct {
	threadID string
	listener *registry.Listener
	env      *envelope.Envelope
	payload  any
	raw      []byte
	fixes    string
}

// processIngress turns one canonical ingress message into zero or more
// scheduled jobs. Every failure short-circuits into a <huh> toward the
// sender, or a logged drop when no sender is recoverable.
func (o *Organism) processIngress(ctx context.Context, msg *message.Message) {
	raw := msg.Payload
	fixes := msg.Metadata.Get(metadataRepairFixes)

	doc, err := envelope.CanonicalDocument(raw)
	if err != nil {
		o.Logger.Error("dropping unparseable canonical bytes", err, nil)
		return
	}

	env, err := envelope.Parse(doc)
	if err != nil {
		o.Logger.Debug("envelope rejected", logging.LogFields{"error": err.Error()})
		if sender := bestEffortSender(doc); sender != "" {
			o.emitHuh(sender, "", envelope.ErrTextEnvelopeMalformed, raw, fixes, "envelope")
		}
		return
	}

	if env.IsCorePayload() {
		o.handleCore(ctx, env, raw)
		return
	}

	tag := env.PayloadTag()
	owners := o.registry.LookupByRoot(tag)

	if env.To != "" {
		target := o.registry.LookupByName(env.To)
		if target == nil {
			o.emitHuh(env.From, env.Thread, envelope.ErrTextInvalidPayload, raw, fixes, "routing")
			return
		}
		// A directed payload may belong to another listener's contract, a
		// result flowing back to its caller. Validate against the schema
		// owner when there is one; an unowned root from a registered sender
		// is delivered raw.
		var owner *registry.Listener
		if len(owners) > 0 {
			owner = owners[0]
		} else if o.registry.LookupByName(env.From) == nil {
			o.emitHuh(env.From, env.Thread, envelope.ErrTextInvalidPayload, raw, fixes, "unknown_root")
			return
		}
		o.admit(env, target, owner, raw, fixes)
		return
	}

	if len(owners) == 0 {
		o.emitHuh(env.From, env.Thread, envelope.ErrTextInvalidPayload, raw, fixes, "unknown_root")
		return
	}
	for _, owner := range owners {
		o.admit(env, owner, owner, raw, fixes)
	}
}

// admit runs the tail of one listener's pipeline (schema validate +
// deserialize), resolves the thread, and enqueues the dispatch. A nil owner
// means no schema governs the root tag; the payload is delivered raw.
func (o *Organism) admit(env *envelope.Envelope, target, owner *registry.Listener, raw []byte, fixes string) {
	var payload any
	if owner == nil {
		payload = &handlers.Raw{Tag: env.PayloadTag(), Element: env.Payload}
	} else {
		if err := pipeline.Validate(env.Payload, owner.RootTag, owner.Payload); err != nil {
			o.Logger.Debug("payload rejected", logging.LogFields{
				"listener": target.Name,
				"thread":   env.Thread,
				"error":    err.Error(),
			})
			o.emitHuh(env.From, env.Thread, envelope.ErrTextInvalidPayload, raw, fixes, "schema")
			return
		}
		deserialized, err := pipeline.Deserialize(env.Payload, owner.Payload)
		if err != nil {
			o.emitHuh(env.From, env.Thread, envelope.ErrTextInvalidPayload, raw, fixes, "schema")
			return
		}
		payload = deserialized
	}

	threadID := env.Thread
	if _, known := o.threads.Lookup(threadID); threadID == "" || !known {
		threadID = o.threads.StartChain(env.From, target.Name, o.Conf.ThreadTokenBudgetDefault)
	}

	o.sched.enqueue(&dispatchJob{
		threadID: threadID,
		listener: target,
		env:      env,
		payload:  payload,
		raw:      raw,
		fixes:    fixes,
	})
}

// dispatch invokes the handler for one job and processes its return. All
// security-critical metadata is captured here, before the handler runs, and
// never read back from its output.
func (o *Organism) dispatch(ctx context.Context, job *dispatchJob) {
	listener := job.listener
	budget := o.threads.BudgetOf(job.threadID)
	if budget.Exhausted() {
		o.failBudget(job)
		return
	}

	meta := handlers.Metadata{
		ThreadID:          job.threadID,
		FromID:            job.env.From,
		IsSelfCall:        job.env.From == listener.Name,
		UsageInstructions: listener.UsageInstructions,
	}
	if listener.IsAgent {
		meta.OwnName = listener.Name
	}

	if listener.IsAgent {
		release := o.acquireAgentSlot(listener.Name)
		defer release()
	}

	timeout := listener.Timeout
	if timeout <= 0 {
		timeout = o.Conf.HandlerTimeoutDefault
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	untrack := o.trackCancel(job.threadID, cancel)
	defer untrack()

	hctx = handlers.WithUsageReporter(hctx, func(tokens int64) {
		budget.Debit(tokens)
	})
	if o.completer != nil {
		hctx = handlers.WithCompleter(hctx, o.completer)
	}

	hctx, span := o.tracer.Start(hctx, "xmlpipeline.dispatch", trace.WithAttributes(
		attribute.String("listener", listener.Name),
		attribute.String("thread", job.threadID),
	))
	defer span.End()

	started := time.Now()
	resp, err := o.invoke(hctx, listener, job.payload, meta)
	o.metrics.observeHandler(listener.Name, time.Since(started).Seconds())

	switch {
	case hctx.Err() == context.DeadlineExceeded:
		o.metrics.dispatch(listener.Name, "timeout")
		o.Logger.Error("handler timed out", hctx.Err(), logging.LogFields{
			"listener": listener.Name,
			"thread":   job.threadID,
		})
		o.emitSystemError(listener.Name, job.threadID, envelope.CodeTimeout, true)
		return
	case hctx.Err() == context.Canceled:
		// The subtree was pruned while the handler ran; its result is moot.
		o.metrics.dispatch(listener.Name, "cancelled")
		return
	case err != nil:
		o.metrics.dispatch(listener.Name, "error")
		o.Logger.Error("handler failed", err, logging.LogFields{
			"listener": listener.Name,
			"thread":   job.threadID,
		})
		o.emitSystemError(listener.Name, job.threadID, envelope.CodeValidation, true)
		return
	}

	if budget.Exhausted() {
		o.failBudget(job)
		return
	}

	switch {
	case resp == nil:
		o.metrics.dispatch(listener.Name, "terminate")
		removed := o.threads.PruneTail(job.threadID)
		o.cancelThreads(removed[1:])
	case resp.Kind == handlers.KindRespond:
		o.metrics.dispatch(listener.Name, "respond")
		o.handleRespond(job, resp)
	case resp.Kind == handlers.KindForward:
		o.metrics.dispatch(listener.Name, "forward")
		o.handleForward(job, resp)
	default:
		o.metrics.dispatch(listener.Name, "terminate")
		removed := o.threads.PruneTail(job.threadID)
		o.cancelThreads(removed[1:])
	}
}

// invoke runs the handler with panic isolation. A panicking handler is
// indistinguishable from one returning an error.
func (o *Organism) invoke(ctx context.Context, listener *registry.Listener, payload any, meta handlers.Metadata) (resp *handlers.Response, err error) {
	type result struct {
		resp *handlers.Response
		err  error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{nil, fmt.Errorf("xmlpipeline: handler panicked: %v", r)}
			}
		}()
		r, e := listener.Handler(ctx, payload, meta)
		done <- result{r, e}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.resp, r.err
	}
}

// handleRespond pops the responder off the chain and routes the payload to
// the caller. Sub-chains opened by the responder die with it.
func (o *Organism) handleRespond(job *dispatchJob, resp *handlers.Response) {
	callerID, callerName, removed, err := o.threads.PruneForResponse(job.threadID)
	if err != nil {
		o.Logger.Error("response with no caller", err, logging.LogFields{
			"listener": job.listener.Name,
			"thread":   job.threadID,
		})
		o.emitSystemError(job.listener.Name, job.threadID, envelope.CodeRouting, true)
		return
	}
	o.cancelThreads(removed)

	el, err := o.marshalHandlerPayload(job.listener.Name, resp.Payload)
	if err != nil {
		o.Logger.Error("rendering response payload", err, logging.LogFields{
			"listener": job.listener.Name,
		})
		o.emitSystemError(job.listener.Name, callerID, envelope.CodeValidation, true)
		return
	}

	env := &envelope.Envelope{
		From:    job.listener.Name,
		Thread:  callerID,
		To:      callerName,
		Payload: el,
	}
	if o.registry.LookupByName(callerName) == nil {
		o.publish(o.Conf.EgressTopic, env)
		return
	}
	o.publish(o.Conf.IngressTopic, env)
}

// handleForward extends the chain toward the target and re-injects. Peer
// violations and missing targets produce the same generic SystemError so a
// handler cannot probe the topology.
func (o *Organism) handleForward(job *dispatchJob, resp *handlers.Response) {
	listener := job.listener

	target := resp.To
	selfCall := target == "" || target == "self" || target == listener.Name
	if target == "" || target == "self" {
		if owner := o.registry.LookupByValue(resp.Payload); owner != nil && owner.Name != listener.Name {
			target = owner.Name
			selfCall = false
		} else {
			target = listener.Name
		}
	}

	if !selfCall {
		allowed := listener.AllowsPeer(target)
		if !allowed || o.registry.LookupByName(target) == nil {
			o.Logger.Debug("forward rejected", logging.LogFields{
				"listener": listener.Name,
				"thread":   job.threadID,
			})
			o.emitSystemError(listener.Name, job.threadID, envelope.CodeRouting, true)
			return
		}
	}

	if max := o.Conf.MaxChainLength; max > 0 {
		if chain, ok := o.threads.Lookup(job.threadID); ok && len(chain)+1 > max {
			o.Logger.Error("delegation ceiling reached", errspkg.ErrChainTooLong, logging.LogFields{
				"listener": listener.Name,
				"thread":   job.threadID,
			})
			o.failBudget(job)
			return
		}
	}

	newID, err := o.threads.ExtendChain(job.threadID, target)
	if err != nil {
		o.emitSystemError(listener.Name, job.threadID, envelope.CodeRouting, true)
		return
	}

	el, err := o.marshalHandlerPayload(target, resp.Payload)
	if err != nil {
		o.emitSystemError(listener.Name, job.threadID, envelope.CodeValidation, true)
		return
	}

	o.publish(o.Conf.IngressTopic, &envelope.Envelope{
		From:    listener.Name,
		Thread:  newID,
		To:      target,
		Payload: el,
	})
}

// marshalHandlerPayload renders a handler-returned payload. Registered types
// keep their listener's root tag; anything else derives one from name (the
// responder's own name for a response, the target's name for a forward) and
// the payload's own type.
func (o *Organism) marshalHandlerPayload(name string, payload any) (*etree.Element, error) {
	if owner := o.registry.LookupByValue(payload); owner != nil {
		return registry.MarshalPayload(owner.RootTag, owner.Payload, payload)
	}
	pt, err := registry.Describe(payload)
	if err != nil {
		return nil, err
	}
	return registry.MarshalPayload(registry.DeriveRootTag(name, pt), pt, payload)
}

// failBudget terminates the job's chain with a budget SystemError.
func (o *Organism) failBudget(job *dispatchJob) {
	o.metrics.dispatch(job.listener.Name, "budget")
	o.emitSystemError(job.listener.Name, job.threadID, envelope.CodeBudget, false)
	removed := o.threads.PruneSubtree(job.threadID)
	o.cancelThreads(removed)
}

// emitHuh publishes a diagnostic <huh> toward the sender of a failed
// message.
func (o *Organism) emitHuh(recipient, threadID, errText string, original []byte, fixes, reason string) {
	o.metrics.huh(reason)
	huh := envelope.NewHuh(errText, original)
	el := huh.Element()
	if fixes != "" {
		el.CreateElement("applied-fixes").SetText(fixes)
	}
	o.publish(o.Conf.EgressTopic, &envelope.Envelope{
		From:    envelope.SenderSystem,
		Thread:  threadID,
		To:      recipient,
		Payload: el,
	})
}

// emitSystemError publishes a generic SystemError into the recipient's
// thread.
func (o *Organism) emitSystemError(recipient, threadID, code string, retryAllowed bool) {
	o.metrics.systemError(code)
	sysErr := &envelope.SystemError{
		Code:         code,
		Message:      genericSystemMessage,
		RetryAllowed: retryAllowed,
	}
	o.publish(o.Conf.EgressTopic, &envelope.Envelope{
		From:    envelope.SenderSystem,
		Thread:  threadID,
		To:      recipient,
		Payload: sysErr.Element(),
	})
}

// publish canonicalizes the envelope and sends it to the topic.
func (o *Organism) publish(topic string, env *envelope.Envelope) {
	canonical, err := env.Bytes()
	if err != nil {
		o.Logger.Error("rendering envelope", err, logging.LogFields{"to": env.To})
		return
	}
	msg := message.NewMessage(ids.CreateULID(), canonical)
	if err := o.bus.Publish(topic, msg); err != nil {
		o.Logger.Error("publishing message", err, logging.LogFields{"topic": topic})
	}
}

// bestEffortSender pulls a <from> out of a document that failed envelope
// validation so the huh can still reach someone.
func bestEffortSender(doc *etree.Document) string {
	root := doc.Root()
	if root == nil {
		return ""
	}
	if from := root.SelectElement("from"); from != nil {
		return strings.TrimSpace(from.Text())
	}
	return ""
}
