package envelope

import (
	"encoding/base64"

	"github.com/beevik/etree"
)

// Core-namespace element names.
const (
	tagHuh              = "huh"
	tagSystemError      = "SystemError"
	tagRequestSchema    = "request-schema"
	tagListCapabilities = "list-capabilities"
	tagRequestExample   = "request-example"
	tagRequestPrompt    = "request-prompt"
	tagCapability       = "capability"
	tagGoodbye          = "goodbye"
)

// SystemError codes.
const (
	CodeRouting    = "routing"
	CodeValidation = "validation"
	CodeTimeout    = "timeout"
	CodeBudget     = "budget"
)

// Canned externally-visible error texts. The taxonomy of internal causes is
// deliberately collapsed onto these so a sender cannot probe the topology:
// wrong-schema and nonexistent-capability are indistinguishable.
const (
	ErrTextInvalidPayload    = "Invalid payload structure"
	ErrTextUnknownRoot       = "Unknown root tag"
	ErrTextEnvelopeMalformed = "Envelope malformed"
)

// huhAttemptLimit caps the original bytes echoed inside a <huh>.
const huhAttemptLimit = 4096

// Huh is the diagnostic payload routed back to the sender of a message that
// failed processing.
type Huh struct {
	Error           string
	OriginalAttempt string
}

// NewHuh builds a Huh carrying the canned error text and the base64 of the
// offending bytes, truncated to 4 KiB of original input.
func NewHuh(errText string, original []byte) *Huh {
	if len(original) > huhAttemptLimit {
		original = original[:huhAttemptLimit]
	}
	return &Huh{
		Error:           errText,
		OriginalAttempt: base64.StdEncoding.EncodeToString(original),
	}
}

// Element renders the <huh> payload in the core namespace.
func (h *Huh) Element() *etree.Element {
	el := etree.NewElement(tagHuh)
	el.CreateAttr("xmlns", CoreNamespace)
	el.CreateElement("error").SetText(h.Error)
	el.CreateElement("original-attempt").SetText(h.OriginalAttempt)
	return el
}

// ParseHuh decodes a <huh> element. Returns nil when the element is not one.
func ParseHuh(el *etree.Element) *Huh {
	if el == nil || el.Tag != tagHuh {
		return nil
	}
	h := &Huh{}
	if e := el.SelectElement("error"); e != nil {
		h.Error = trimText(e)
	}
	if e := el.SelectElement("original-attempt"); e != nil {
		h.OriginalAttempt = trimText(e)
	}
	return h
}

// SystemError is the pump-emitted payload for runtime failures: peer
// violations, timeouts, and budget exhaustion. The message is generic by
// design.
type SystemError struct {
	Code         string
	Message      string
	RetryAllowed bool
}

// Element renders the <SystemError> payload in the core namespace.
func (s *SystemError) Element() *etree.Element {
	el := etree.NewElement(tagSystemError)
	el.CreateAttr("xmlns", CoreNamespace)
	el.CreateElement("code").SetText(s.Code)
	el.CreateElement("message").SetText(s.Message)
	retry := "false"
	if s.RetryAllowed {
		retry = "true"
	}
	el.CreateElement("retry-allowed").SetText(retry)
	return el
}

// ParseSystemError decodes a <SystemError> element. Returns nil when the
// element is not one.
func ParseSystemError(el *etree.Element) *SystemError {
	if el == nil || el.Tag != tagSystemError {
		return nil
	}
	s := &SystemError{}
	if e := el.SelectElement("code"); e != nil {
		s.Code = trimText(e)
	}
	if e := el.SelectElement("message"); e != nil {
		s.Message = trimText(e)
	}
	if e := el.SelectElement("retry-allowed"); e != nil {
		s.RetryAllowed = trimText(e) == "true"
	}
	return s
}

// Goodbye is the shutdown notice published to egress when the organism
// stops.
type Goodbye struct {
	Reason string
}

// NewGoodbye builds a Goodbye with the given reason.
func NewGoodbye(reason string) *Goodbye {
	return &Goodbye{Reason: reason}
}

// Element renders the <goodbye> payload in the core namespace.
func (g *Goodbye) Element() *etree.Element {
	el := etree.NewElement(tagGoodbye)
	el.CreateAttr("xmlns", CoreNamespace)
	el.CreateAttr("reason", g.Reason)
	return el
}

// MetaRequestKind identifies a core-namespace introspection request.
type MetaRequestKind int

const (
	MetaNone MetaRequestKind = iota
	MetaListCapabilities
	MetaRequestSchema
	MetaRequestExample
	MetaRequestPrompt
)

// ParseMetaRequest classifies an introspection request payload and extracts
// the optional <capability> argument.
func ParseMetaRequest(el *etree.Element) (MetaRequestKind, string) {
	if el == nil {
		return MetaNone, ""
	}
	var kind MetaRequestKind
	switch el.Tag {
	case tagListCapabilities:
		kind = MetaListCapabilities
	case tagRequestSchema:
		kind = MetaRequestSchema
	case tagRequestExample:
		kind = MetaRequestExample
	case tagRequestPrompt:
		kind = MetaRequestPrompt
	default:
		return MetaNone, ""
	}
	capability := ""
	if c := el.SelectElement(tagCapability); c != nil {
		capability = trimText(c)
	}
	return kind, capability
}
