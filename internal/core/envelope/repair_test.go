package envelope

import (
	"strings"
	"testing"
)

func TestRepairAcceptsWellFormedInput(t *testing.T) {
	raw := []byte(`<message xmlns="` + Namespace + `"><from>alice</from><ping/></message>`)
	doc, fixes, err := Repair(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fixes) != 0 {
		t.Fatalf("expected no fixes, got %v", fixes)
	}
	if doc.Root().Tag != "message" {
		t.Fatalf("unexpected root tag %q", doc.Root().Tag)
	}
}

func TestRepairStripsSurroundingNoise(t *testing.T) {
	raw := []byte("Sure, here is the XML you asked for:\n<message xmlns=\"" + Namespace + "\"><from>bot</from><ping/></message>\nHope that helps!")
	doc, fixes, err := Repair(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Root() == nil || doc.Root().Tag != "message" {
		t.Fatal("expected a <message> root after trimming")
	}
	if len(fixes) != 1 || !strings.Contains(fixes[0], "non-markup") {
		t.Fatalf("expected a strip fix, got %v", fixes)
	}
}

func TestRepairEscapesBareAmpersands(t *testing.T) {
	raw := []byte(`<message xmlns="` + Namespace + `"><from>a&b</from><ping/></message>`)
	doc, fixes, err := Repair(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := doc.Root().SelectElement("from").Text(); got != "a&b" {
		t.Fatalf("expected decoded text a&b, got %q", got)
	}
	found := false
	for _, fix := range fixes {
		if strings.Contains(fix, "ampersand") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an ampersand fix, got %v", fixes)
	}
}

func TestRepairPreservesEntityReferences(t *testing.T) {
	raw := []byte(`<message xmlns="` + Namespace + `"><from>a&amp;b</from><ping/></message>`)
	_, fixes, err := Repair(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fixes) != 0 {
		t.Fatalf("expected no fixes for a valid entity, got %v", fixes)
	}
}

func TestRepairDeclaresMissingNamespace(t *testing.T) {
	raw := []byte(`<message><from>alice</from><ping/></message>`)
	doc, fixes, err := Repair(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := doc.Root().SelectAttrValue("xmlns", ""); got != Namespace {
		t.Fatalf("expected namespace %q declared, got %q", Namespace, got)
	}
	found := false
	for _, fix := range fixes {
		if strings.Contains(fix, "namespace") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a namespace fix, got %v", fixes)
	}
}

func TestRepairRejectsUnrecoverableInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain prose", "this is not xml at all"},
		{"unbalanced markup", "<message><from>alice</message>"},
		{"empty input", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Repair([]byte(tt.raw)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
