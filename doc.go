// Package xmlpipeline is a secure, XML-native message substrate for
// multi-agent systems. It hosts a dynamic catalog of bounded capabilities
// ("listeners"), some LLM-driven, and routes validated, thread-tracked
// messages between them over an in-memory Watermill bus.
//
// The engine consists of four subsystems: a registry that derives root tags,
// synthesizes schemas, examples, and prompt fragments at registration; a
// per-listener preprocessing pipeline (repair, exclusive-C14N
// canonicalization, envelope validation, payload extraction, schema
// validation, deserialization); a central message pump that dispatches to
// handlers under peer enforcement, per-handler timeouts, and per-thread
// token budgets; and a thread registry mapping opaque UUIDs to private call
// chains.
//
// A minimal setup fills Config, creates an Organism, registers listeners,
// and calls Start:
//
//	conf, _ := xmlpipeline.LoadFromEnv()
//	org := xmlpipeline.NewOrganism(conf, logger, xmlpipeline.OrganismDependencies{})
//	org.Register(xmlpipeline.Registration{
//		Name:        "shouter",
//		Description: "Uppercases text.",
//		Prototype:   xmlpipeline.Prototype[ShoutInput](),
//		Handler: xmlpipeline.Typed(func(ctx context.Context, in *ShoutInput, meta xmlpipeline.Metadata) (*xmlpipeline.Response, error) {
//			return xmlpipeline.Respond(&ShoutResult{Text: strings.ToUpper(in.Text)}), nil
//		}),
//	})
//	go org.Start(ctx)
//	org.Deliver(ctx, envelopeBytes)
//
// # Security model
//
// Handlers are untrusted. The pump captures sender identity, thread UUID,
// and peer lists before invoking a handler and never reads them back from
// its return value. Error payloads visible to senders are canned and
// deliberately collapse wrong-schema, unknown-capability, and peer-violation
// causes so the topology cannot be probed.
//
// # Threads
//
// Every delegation hop mints a fresh thread UUID, so a handler cannot
// correlate the UUID it received with the one delivered to a sub-call.
// Responding pops the call chain back to the caller and discards any
// sub-chains the responder had opened.
package xmlpipeline
