package envelope

import (
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// Canonicalize applies exclusive C14N to the element and returns the
// canonical bytes. Canonicalization happens on ingress and before any
// comparison, logging, or signature operation downstream of the core.
func Canonicalize(el *etree.Element) ([]byte, error) {
	if el == nil {
		return nil, fmt.Errorf("xmlpipeline: cannot canonicalize a nil element")
	}
	canonicalizer := dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	out, err := canonicalizer.Canonicalize(el)
	if err != nil {
		return nil, fmt.Errorf("xmlpipeline: canonicalization failed: %w", err)
	}
	return out, nil
}

// CanonicalDocument parses canonical bytes back into a document. The bytes
// must already be well-formed; this is the fast path for re-injected
// pump-built envelopes.
func CanonicalDocument(raw []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("xmlpipeline: reading canonical bytes: %w", err)
	}
	return doc, nil
}
