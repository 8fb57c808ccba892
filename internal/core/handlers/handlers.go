// Package handlers defines the listener-facing contract: the metadata passed
// to every invocation, the response sum a handler returns, and the typed
// wrapper that adapts a strongly-typed handler onto the pump's dynamic
// dispatch path.
package handlers

import (
	"context"
	"reflect"

	"github.com/beevik/etree"

	errspkg "github.com/dullfig/xml-pipeline/internal/core/errors"
)

// Raw is the payload form delivered when a message's root tag has no
// registered owner, such as a response synthesized from a result type the
// responder never registered. The element is the payload root as received;
// no schema validation has run against it.
type Raw struct {
	Tag     string
	Element *etree.Element
}

// Metadata carries the trusted per-invocation context the pump injects. The
// sender identity and thread come from the envelope the pump built, never
// from payload content.
type Metadata struct {
	// ThreadID is the opaque conversation identifier for this dispatch.
	ThreadID string

	// FromID names the sender as established by the pump.
	FromID string

	// OwnName is the registered name of the listener being invoked. It is
	// set only for agent listeners and empty otherwise.
	OwnName string

	// IsSelfCall is set when a listener addressed a message to itself.
	IsSelfCall bool

	// UsageInstructions is the free-text usage prose of the listener.
	UsageInstructions string
}

// ResponseKind discriminates the Response sum.
type ResponseKind int

const (
	// KindTerminate ends the handler's participation with no further message.
	KindTerminate ResponseKind = iota
	// KindRespond routes the payload back along the call chain.
	KindRespond
	// KindForward routes the payload onward to a named or derived target.
	KindForward
)

// Response is what a handler returns: terminate, respond back up the chain,
// or forward to another listener. A nil *Response means terminate.
type Response struct {
	Kind    ResponseKind
	Payload any

	// To optionally directs a forward at a named listener. Empty means the
	// target is derived from the payload's root tag.
	To string
}

// Respond routes payload back to the previous participant on the call chain.
func Respond(payload any) *Response {
	return &Response{Kind: KindRespond, Payload: payload}
}

// Forward routes payload onward, extending the call chain. An empty target
// derives the recipient from the payload's root tag.
func Forward(payload any, to string) *Response {
	return &Response{Kind: KindForward, Payload: payload, To: to}
}

// HandlerFunc is the dynamic handler shape the pump invokes. The payload is
// the deserialized Go value whose type the listener registered.
type HandlerFunc func(ctx context.Context, payload any, meta Metadata) (*Response, error)

// Typed adapts a strongly-typed handler onto HandlerFunc. The pump guarantees
// the payload it passes was deserialized into *T, so the assertion cannot
// fail on the dispatch path.
func Typed[T any](handler func(ctx context.Context, payload *T, meta Metadata) (*Response, error)) HandlerFunc {
	return func(ctx context.Context, payload any, meta Metadata) (*Response, error) {
		typed, ok := payload.(*T)
		if !ok {
			return nil, errspkg.ErrPayloadTypeMismatch
		}
		return handler(ctx, typed, meta)
	}
}

// Prototype returns a fresh zero value of T as the registration prototype.
func Prototype[T any]() any {
	var proto T
	return &proto
}

// NewPayload allocates a fresh instance of the prototype's type for the
// deserializer to fill. The prototype must be a non-nil pointer to a struct.
func NewPayload(prototype any) (any, error) {
	if prototype == nil {
		return nil, errspkg.ErrPrototypeRequired
	}
	t := reflect.TypeOf(prototype)
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, errspkg.ErrPrototypePointer
	}
	return reflect.New(t.Elem()).Interface(), nil
}
