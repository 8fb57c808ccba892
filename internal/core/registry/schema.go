package registry

import (
	"github.com/beevik/etree"
)

const xsdNamespace = "http://www.w3.org/2001/XMLSchema"

var xsdTypeNames = map[FieldKind]string{
	KindString:  "xs:string",
	KindInteger: "xs:integer",
	KindDecimal: "xs:decimal",
	KindBoolean: "xs:boolean",
}

// SynthesizeXSD renders the schema document for a payload type rooted at the
// derived root tag. Field order follows the descriptor, so repeated synthesis
// is byte-stable.
func SynthesizeXSD(rootTag string, pt *PayloadType) string {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	schema := doc.CreateElement("xs:schema")
	schema.CreateAttr("xmlns:xs", xsdNamespace)
	schema.CreateAttr("elementFormDefault", "qualified")

	root := schema.CreateElement("xs:element")
	root.CreateAttr("name", rootTag)
	appendComplexType(root, pt)

	doc.Indent(2)
	out, _ := doc.WriteToString()
	return out
}

func appendComplexType(parent *etree.Element, pt *PayloadType) {
	complexType := parent.CreateElement("xs:complexType")
	sequence := complexType.CreateElement("xs:sequence")
	for _, field := range pt.Fields {
		el := sequence.CreateElement("xs:element")
		el.CreateAttr("name", field.Name)
		if field.Kind != KindRecord {
			el.CreateAttr("type", xsdTypeNames[field.Kind])
		}
		if field.HasDefault {
			el.CreateAttr("minOccurs", "0")
		}
		if field.Repeated {
			el.CreateAttr("minOccurs", "0")
			el.CreateAttr("maxOccurs", "unbounded")
		}
		if field.Doc != "" {
			annotation := el.CreateElement("xs:annotation")
			annotation.CreateElement("xs:documentation").SetText(field.Doc)
		}
		if field.Kind == KindRecord {
			appendComplexType(el, field.Record)
		}
	}
}

// SynthesizeExample renders an example payload instance with per-kind default
// values: declared defaults win, otherwise 0, 0.0, false, or the empty
// string.
func SynthesizeExample(rootTag string, pt *PayloadType) string {
	doc := etree.NewDocument()
	root := doc.CreateElement(rootTag)
	fillExample(root, pt)
	doc.Indent(2)
	out, _ := doc.WriteToString()
	return out
}

func fillExample(parent *etree.Element, pt *PayloadType) {
	for _, field := range pt.Fields {
		el := parent.CreateElement(field.Name)
		if field.Kind == KindRecord {
			fillExample(el, field.Record)
			continue
		}
		el.SetText(exampleValue(field))
	}
}

func exampleValue(field Field) string {
	if field.HasDefault {
		return field.Default
	}
	switch field.Kind {
	case KindInteger:
		return "0"
	case KindDecimal:
		return "0.0"
	case KindBoolean:
		return "false"
	default:
		return ""
	}
}
