package envelope

import (
	"bytes"
	"fmt"

	"github.com/beevik/etree"
)

// Repair fixes recoverable defects in raw envelope bytes and parses them into
// a document. Every applied fix is recorded so the pump can attach it to a
// <huh> companion when the message later fails validation. Unrecoverable
// input returns an error and no document.
func Repair(raw []byte) (*etree.Document, []string, error) {
	var fixes []string

	// Text around the markup (beyond plain whitespace) is stripped before the
	// first parse attempt.
	if trimmed := trimToMarkup(raw); len(trimmed) < len(bytes.TrimSpace(raw)) {
		fixes = append(fixes, "stripped non-markup bytes surrounding the document")
		raw = trimmed
	}

	if doc, err := readXML(raw); err == nil {
		return finishRepair(doc, fixes)
	}

	escaped := escapeBareAmpersands(raw)
	if !bytes.Equal(escaped, raw) {
		fixes = append(fixes, "escaped bare ampersands")
		if doc, err := readXML(escaped); err == nil {
			return finishRepair(doc, fixes)
		}
	}

	return nil, nil, fmt.Errorf("xmlpipeline: envelope bytes are not repairable")
}

func finishRepair(doc *etree.Document, fixes []string) (*etree.Document, []string, error) {
	root := doc.Root()
	if root == nil {
		return nil, nil, fmt.Errorf("xmlpipeline: repaired document has no root")
	}
	if root.Tag == tagMessage && root.SelectAttr("xmlns") == nil && root.NamespaceURI() == "" {
		root.CreateAttr("xmlns", Namespace)
		fixes = append(fixes, "declared the envelope namespace on <message>")
	}
	return doc, fixes, nil
}

func readXML(raw []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("no root element")
	}
	return doc, nil
}

// trimToMarkup drops everything before the first '<' and after the last '>'.
func trimToMarkup(raw []byte) []byte {
	start := bytes.IndexByte(raw, '<')
	end := bytes.LastIndexByte(raw, '>')
	if start < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}

// escapeBareAmpersands rewrites '&' that does not begin a character or entity
// reference into '&amp;'.
func escapeBareAmpersands(raw []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if b != '&' {
			out.WriteByte(b)
			continue
		}
		if isEntityStart(raw[i+1:]) {
			out.WriteByte(b)
			continue
		}
		out.WriteString("&amp;")
	}
	return out.Bytes()
}

func isEntityStart(rest []byte) bool {
	semi := bytes.IndexByte(rest, ';')
	if semi <= 0 || semi > 10 {
		return false
	}
	body := rest[:semi]
	if body[0] == '#' {
		return len(body) > 1
	}
	for _, b := range body {
		if !(b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9') {
			return false
		}
	}
	return true
}
