package registry

import (
	"fmt"
	"strings"
)

// responseWarning closes every usage-instruction block. Responding pops the
// conversation back to the caller and ends the responder's sub-chain.
const responseWarning = "Responding to a message ends your part of the conversation: " +
	"the reply goes back to whoever called you, and any capability calls you " +
	"started below it are discarded."

// PromptFragment renders the per-capability prose handed to agents: name,
// description, field table, and an example payload.
func PromptFragment(name, description, rootTag string, pt *PayloadType, example string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Capability: %s\n\n", name)
	fmt.Fprintf(&b, "%s\n\n", description)
	b.WriteString("Fields:\n")
	writeFieldTable(&b, pt, "")
	fmt.Fprintf(&b, "\nExample payload:\n%s\n", example)
	return b.String()
}

func writeFieldTable(b *strings.Builder, pt *PayloadType, prefix string) {
	for _, field := range pt.Fields {
		name := prefix + field.Name
		kind := kindName(field.Kind)
		if field.Repeated {
			kind = "list of " + kind
		}
		if field.Doc != "" {
			fmt.Fprintf(b, "- %s (%s): %s\n", name, kind, field.Doc)
		} else {
			fmt.Fprintf(b, "- %s (%s)\n", name, kind)
		}
		if field.Kind == KindRecord {
			writeFieldTable(b, field.Record, name+".")
		}
	}
}

func kindName(kind FieldKind) string {
	switch kind {
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindBoolean:
		return "boolean"
	case KindRecord:
		return "record"
	default:
		return "string"
	}
}
