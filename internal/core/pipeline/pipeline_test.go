package pipeline

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"github.com/dullfig/xml-pipeline/internal/core/registry"
)

type orderPayload struct {
	Item     string  `xml:"item"`
	Quantity int     `xml:"quantity"`
	Price    float64 `xml:"price"`
	Express  bool    `xml:"express" default:"false"`
	Notes    []string `xml:"note"`
	Shipping struct {
		City string `xml:"city"`
		Zip  string `xml:"zip" default:"00000"`
	} `xml:"shipping"`
}

const orderRoot = "orders.orderpayload"

func orderType(t *testing.T) *registry.PayloadType {
	t.Helper()
	pt, err := registry.Describe(&orderPayload{})
	if err != nil {
		t.Fatalf("describing prototype: %v", err)
	}
	return pt
}

func element(t *testing.T, raw string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(raw); err != nil {
		t.Fatalf("reading test payload: %v", err)
	}
	return doc.Root()
}

func TestValidateAcceptsCompletePayload(t *testing.T) {
	el := element(t, `<`+orderRoot+`>
		<item>book</item>
		<quantity>2</quantity>
		<price>9.99</price>
		<note>gift wrap</note>
		<note>no receipt</note>
		<shipping><city>Oslo</city></shipping>
	</`+orderRoot+`>`)

	if err := Validate(el, orderRoot, orderType(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{
			name:   "wrong root tag",
			raw:    `<other.tag><item>book</item></other.tag>`,
			reason: "root tag does not match",
		},
		{
			name:   "unknown element",
			raw:    `<` + orderRoot + `><item>book</item><quantity>1</quantity><price>1.0</price><shipping><city>Oslo</city></shipping><surprise>x</surprise></` + orderRoot + `>`,
			reason: "unexpected element",
		},
		{
			name:   "missing required field",
			raw:    `<` + orderRoot + `><item>book</item><price>1.0</price><shipping><city>Oslo</city></shipping></` + orderRoot + `>`,
			reason: "required element missing",
		},
		{
			name:   "repeated scalar",
			raw:    `<` + orderRoot + `><item>book</item><item>pen</item><quantity>1</quantity><price>1.0</price><shipping><city>Oslo</city></shipping></` + orderRoot + `>`,
			reason: "element repeated",
		},
		{
			name:   "integer parse failure",
			raw:    `<` + orderRoot + `><item>book</item><quantity>not-a-number</quantity><price>1.0</price><shipping><city>Oslo</city></shipping></` + orderRoot + `>`,
			reason: "not an integer",
		},
		{
			name:   "decimal parse failure",
			raw:    `<` + orderRoot + `><item>book</item><quantity>1</quantity><price>cheap</price><shipping><city>Oslo</city></shipping></` + orderRoot + `>`,
			reason: "not a decimal",
		},
		{
			name:   "boolean parse failure",
			raw:    `<` + orderRoot + `><item>book</item><quantity>1</quantity><price>1.0</price><express>yes</express><shipping><city>Oslo</city></shipping></` + orderRoot + `>`,
			reason: "not a boolean",
		},
		{
			name:   "nested required missing",
			raw:    `<` + orderRoot + `><item>book</item><quantity>1</quantity><price>1.0</price><shipping><zip>1234</zip></shipping></` + orderRoot + `>`,
			reason: "required element missing",
		},
	}

	pt := orderType(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(element(t, tt.raw), orderRoot, pt)
			if err == nil {
				t.Fatal("expected an error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected a ValidationError, got %T", err)
			}
			if !strings.Contains(verr.Reason, tt.reason) {
				t.Fatalf("expected reason containing %q, got %q", tt.reason, verr.Reason)
			}
		})
	}
}

func TestDeserializeFillsTypedPayload(t *testing.T) {
	el := element(t, `<`+orderRoot+`>
		<item>book</item>
		<quantity>2</quantity>
		<price>9.99</price>
		<express>true</express>
		<note>gift wrap</note>
		<note>no receipt</note>
		<shipping><city>Oslo</city><zip>0150</zip></shipping>
	</`+orderRoot+`>`)

	out, err := Deserialize(el, orderType(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order, ok := out.(*orderPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", out)
	}
	if order.Item != "book" || order.Quantity != 2 || order.Price != 9.99 || !order.Express {
		t.Fatalf("unexpected scalars: %+v", order)
	}
	if !reflect.DeepEqual(order.Notes, []string{"gift wrap", "no receipt"}) {
		t.Fatalf("unexpected notes: %v", order.Notes)
	}
	if order.Shipping.City != "Oslo" || order.Shipping.Zip != "0150" {
		t.Fatalf("unexpected shipping: %+v", order.Shipping)
	}
}

func TestDeserializeAppliesDefaults(t *testing.T) {
	el := element(t, `<`+orderRoot+`>
		<item>book</item>
		<quantity>1</quantity>
		<price>1.0</price>
		<shipping><city>Oslo</city></shipping>
	</`+orderRoot+`>`)

	out, err := Deserialize(el, orderType(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order := out.(*orderPayload)
	if order.Express {
		t.Fatal("expected express default false")
	}
	if order.Shipping.Zip != "00000" {
		t.Fatalf("expected nested default, got %q", order.Shipping.Zip)
	}
	if order.Notes == nil || len(order.Notes) != 0 {
		t.Fatalf("expected empty note slice, got %v", order.Notes)
	}
}
