package core

import (
	"context"

	"github.com/beevik/etree"

	"github.com/dullfig/xml-pipeline/internal/core/config"
	"github.com/dullfig/xml-pipeline/internal/core/envelope"
	"github.com/dullfig/xml-pipeline/internal/core/logging"
	"github.com/dullfig/xml-pipeline/internal/core/registry"
)

// handleCore processes reserved-namespace payloads with the privileged
// internal handler. User listeners never see these. Inbound pump-only
// payloads (huh, SystemError, goodbye) arriving from outside are dropped.
func (o *Organism) handleCore(ctx context.Context, env *envelope.Envelope, raw []byte) {
	kind, capability := envelope.ParseMetaRequest(env.Payload)
	if kind == envelope.MetaNone {
		o.Logger.Debug("dropping inbound core payload", logging.LogFields{
			"tag":  env.PayloadTag(),
			"from": env.From,
		})
		return
	}

	if !o.metaAllowed(kind) {
		o.emitSystemError(env.From, env.Thread, envelope.CodeRouting, false)
		return
	}

	var payload *etree.Element
	switch kind {
	case envelope.MetaListCapabilities:
		payload = o.capabilityList()
	default:
		listener := o.registry.LookupByName(capability)
		if listener == nil {
			// Indistinguishable from a disabled policy on purpose.
			o.emitSystemError(env.From, env.Thread, envelope.CodeRouting, false)
			return
		}
		payload = capabilityArtifact(kind, listener)
	}

	o.publish(o.Conf.EgressTopic, &envelope.Envelope{
		From:    envelope.SenderCore,
		Thread:  env.Thread,
		To:      env.From,
		Payload: payload,
	})
}

func (o *Organism) metaAllowed(kind envelope.MetaRequestKind) bool {
	switch kind {
	case envelope.MetaListCapabilities:
		return o.Conf.Meta.List
	case envelope.MetaRequestSchema:
		return o.Conf.Meta.Schema != config.MetaPolicyNone
	case envelope.MetaRequestExample:
		return o.Conf.Meta.Example != config.MetaPolicyNone
	case envelope.MetaRequestPrompt:
		return o.Conf.Meta.Prompt != config.MetaPolicyNone
	}
	return false
}

// capabilityList renders the registry snapshot as a core-namespace element.
func (o *Organism) capabilityList() *etree.Element {
	list := etree.NewElement("capability-list")
	list.CreateAttr("xmlns", envelope.CoreNamespace)
	for _, listener := range o.registry.Snapshot() {
		entry := list.CreateElement("capability")
		entry.CreateAttr("name", listener.Name)
		entry.CreateAttr("root-tag", listener.RootTag)
		entry.CreateElement("description").SetText(listener.Description)
	}
	return list
}

// capabilityArtifact serves one cached registration artifact.
func capabilityArtifact(kind envelope.MetaRequestKind, listener *registry.Listener) *etree.Element {
	var tag, body string
	switch kind {
	case envelope.MetaRequestSchema:
		tag, body = "capability-schema", listener.Schema
	case envelope.MetaRequestExample:
		tag, body = "capability-example", listener.Example
	default:
		tag, body = "capability-prompt", listener.PromptFragment
	}
	el := etree.NewElement(tag)
	el.CreateAttr("xmlns", envelope.CoreNamespace)
	el.CreateAttr("capability", listener.Name)
	el.CreateCData(body)
	return el
}
