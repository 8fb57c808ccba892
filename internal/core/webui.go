package core

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dullfig/xml-pipeline/internal/core/logging"
)

type capabilityInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	RootTag     string   `json:"root_tag"`
	IsAgent     bool     `json:"is_agent"`
	Broadcast   bool     `json:"broadcast"`
	Peers       []string `json:"peers,omitempty"`
}

func (o *Organism) startIntrospectionServer() {
	if !o.Conf.IntrospectionEnabled {
		return
	}

	port := o.Conf.IntrospectionPort
	o.RegisterHTTPHandler(port, "/api/capabilities", http.HandlerFunc(o.handleGetCapabilities))
	if o.metrics != nil {
		o.RegisterHTTPHandler(port, "/metrics", promhttp.HandlerFor(o.metrics.registry, promhttp.HandlerOpts{}))
	}
	o.startHTTPServers()
}

func (o *Organism) handleGetCapabilities(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if len(o.Conf.IntrospectionCORSAllowedOrigins) > 0 {
		if allowed := o.allowedCORSOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	listeners := o.registry.Snapshot()
	infos := make([]capabilityInfo, 0, len(listeners))
	for _, l := range listeners {
		infos = append(infos, capabilityInfo{
			Name:        l.Name,
			Description: l.Description,
			RootTag:     l.RootTag,
			IsAgent:     l.IsAgent,
			Broadcast:   l.Broadcast,
			Peers:       l.Peers,
		})
	}

	body, err := sonic.Marshal(infos)
	if err != nil {
		o.Logger.Error("encoding capabilities", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(body); err != nil {
		o.Logger.Error("writing capabilities", err, nil)
	}
}

// allowedCORSOrigin checks the request origin against the configured list
// and returns the Access-Control-Allow-Origin value.
func (o *Organism) allowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range o.Conf.IntrospectionCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}

// RegisterHTTPHandler mounts a handler on the mux for the given port. Muxes
// are started together by startHTTPServers.
func (o *Organism) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	o.httpServersMu.Lock()
	defer o.httpServersMu.Unlock()

	if o.httpServers == nil {
		o.httpServers = make(map[int]*http.ServeMux)
	}
	mux, ok := o.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		o.httpServers[port] = mux
	}
	mux.Handle(pattern, handler)
}

func (o *Organism) startHTTPServers() {
	o.httpServersMu.Lock()
	defer o.httpServersMu.Unlock()

	for port, mux := range o.httpServers {
		addr := fmt.Sprintf(":%d", port)
		o.Logger.Info("starting HTTP server", logging.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				o.Logger.Error("HTTP server stopped", err, logging.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}
