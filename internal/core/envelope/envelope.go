// Package envelope implements the canonical XML message envelope, the repair
// air-lock for inbound bytes, and the reserved core-namespace payloads.
package envelope

import (
	"fmt"

	"github.com/beevik/etree"

	errspkg "github.com/dullfig/xml-pipeline/internal/core/errors"
)

// Namespace is the envelope namespace every <message> element lives in.
const Namespace = "https://xml-pipeline.org/ns/envelope/v1"

// CoreNamespace is the reserved namespace for pump-originated payloads and
// introspection requests.
const CoreNamespace = "https://xml-pipeline.org/ns/core/v1"

// Reserved sender names for pump-originated messages.
const (
	SenderCore   = "core"
	SenderSystem = "system"
)

const (
	tagMessage = "message"
	tagFrom    = "from"
	tagThread  = "thread"
	tagTo      = "to"
)

// Envelope is the in-memory form of a <message> element: sender, opaque
// thread UUID, optional explicit target, and exactly one payload root.
type Envelope struct {
	From    string
	Thread  string
	To      string
	Payload *etree.Element
}

// Parse validates the envelope structure of the document and extracts the
// single payload root. The thread element may be absent on ingress; the pump
// assigns one before dispatch.
func Parse(doc *etree.Document) (*Envelope, error) {
	root := doc.Root()
	if root == nil || root.Tag != tagMessage {
		return nil, errspkg.ErrEnvelopeMalformed
	}
	if ns := root.NamespaceURI(); ns != "" && ns != Namespace {
		return nil, fmt.Errorf("%w: unexpected namespace %q", errspkg.ErrEnvelopeMalformed, ns)
	}

	env := &Envelope{}
	var payloads []*etree.Element
	for _, child := range root.ChildElements() {
		switch child.Tag {
		case tagFrom:
			env.From = trimText(child)
		case tagThread:
			env.Thread = trimText(child)
		case tagTo:
			env.To = trimText(child)
		default:
			payloads = append(payloads, child)
		}
	}

	if env.From == "" {
		return nil, fmt.Errorf("%w: missing <from>", errspkg.ErrEnvelopeMalformed)
	}
	switch len(payloads) {
	case 0:
		return nil, errspkg.ErrPayloadMissing
	case 1:
		env.Payload = payloads[0].Copy()
	default:
		return nil, errspkg.ErrPayloadAmbiguous
	}

	return env, nil
}

// Document renders the envelope back into a <message> document with the
// envelope namespace declared on the root.
func (e *Envelope) Document() *etree.Document {
	doc := etree.NewDocument()
	root := doc.CreateElement(tagMessage)
	root.CreateAttr("xmlns", Namespace)

	root.CreateElement(tagFrom).SetText(e.From)
	if e.Thread != "" {
		root.CreateElement(tagThread).SetText(e.Thread)
	}
	if e.To != "" {
		root.CreateElement(tagTo).SetText(e.To)
	}
	if e.Payload != nil {
		root.AddChild(e.Payload.Copy())
	}
	return doc
}

// Bytes returns the exclusive-C14N canonical serialization of the envelope.
// This is the only byte form subject to logging, comparison, or signing.
func (e *Envelope) Bytes() ([]byte, error) {
	return Canonicalize(e.Document().Root())
}

// PayloadTag returns the namespace-local name of the payload root, or "" when
// no payload is attached.
func (e *Envelope) PayloadTag() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Tag
}

// IsCorePayload reports whether the payload root belongs to the reserved core
// namespace.
func (e *Envelope) IsCorePayload() bool {
	if e.Payload == nil {
		return false
	}
	if e.Payload.NamespaceURI() == CoreNamespace {
		return true
	}
	switch e.Payload.Tag {
	case tagHuh, tagSystemError, tagRequestSchema, tagListCapabilities, tagRequestExample, tagRequestPrompt, tagGoodbye:
		return true
	}
	return false
}

func trimText(el *etree.Element) string {
	text := el.Text()
	// etree preserves surrounding whitespace from pretty-printed input.
	start, end := 0, len(text)
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	return text[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
