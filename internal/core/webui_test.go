package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/dullfig/xml-pipeline/internal/core/config"
	"github.com/dullfig/xml-pipeline/internal/core/handlers"
	"github.com/dullfig/xml-pipeline/internal/core/logging"
	"github.com/dullfig/xml-pipeline/internal/core/registry"
)

func newIntrospectionOrganism(t *testing.T, conf *config.Config) *Organism {
	t.Helper()
	if conf == nil {
		conf = &config.Config{OrganismName: "test"}
	}
	org := NewOrganism(conf, logging.NopLogger(), OrganismDependencies{})
	_, err := org.Register(registry.Registration{
		Name:        "adder",
		Description: "Adds two integers.",
		Prototype:   handlers.Prototype[sumPayload](),
		Handler: handlers.Typed(func(ctx context.Context, in *sumPayload, meta handlers.Metadata) (*handlers.Response, error) {
			return nil, nil
		}),
	})
	if err != nil {
		t.Fatalf("registering adder: %v", err)
	}
	return org
}

func TestCapabilitiesEndpointListsRegistry(t *testing.T) {
	org := newIntrospectionOrganism(t, nil)

	rec := httptest.NewRecorder()
	org.handleGetCapabilities(rec, httptest.NewRequest(http.MethodGet, "/api/capabilities", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var infos []capabilityInfo
	if err := sonic.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected one capability, got %d", len(infos))
	}
	if infos[0].Name != "adder" || infos[0].RootTag != "adder.sumpayload" {
		t.Fatalf("unexpected capability %+v", infos[0])
	}
}

func TestCapabilitiesEndpointCORS(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"exact match", []string{"https://ui.example.com"}, "https://ui.example.com", "https://ui.example.com"},
		{"case insensitive", []string{"https://UI.example.com"}, "https://ui.example.com", "https://ui.example.com"},
		{"wildcard", []string{"*"}, "https://anywhere.example.com", "*"},
		{"not allowed", []string{"https://ui.example.com"}, "https://evil.example.com", ""},
		{"no config", nil, "https://ui.example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := &config.Config{
				OrganismName:                    "test",
				IntrospectionCORSAllowedOrigins: tt.allowed,
			}
			org := newIntrospectionOrganism(t, conf)

			req := httptest.NewRequest(http.MethodGet, "/api/capabilities", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			org.handleGetCapabilities(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Fatalf("unexpected allow-origin %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCapabilitiesEndpointPreflight(t *testing.T) {
	conf := &config.Config{
		OrganismName:                    "test",
		IntrospectionCORSAllowedOrigins: []string{"*"},
	}
	org := newIntrospectionOrganism(t, conf)

	req := httptest.NewRequest(http.MethodOptions, "/api/capabilities", nil)
	req.Header.Set("Origin", "https://ui.example.com")
	rec := httptest.NewRecorder()
	org.handleGetCapabilities(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected preflight status %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("preflight response carries a body: %q", rec.Body.String())
	}
}
