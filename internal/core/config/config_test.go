package config

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	var conf Config
	conf.Normalize()

	if conf.OrganismName != "organism" {
		t.Fatalf("unexpected organism name %q", conf.OrganismName)
	}
	if conf.ThreadScheduling != SchedulingBreadthFirst {
		t.Fatalf("unexpected scheduling %q", conf.ThreadScheduling)
	}
	if conf.FairnessWindow != 4 {
		t.Fatalf("unexpected fairness window %d", conf.FairnessWindow)
	}
	if conf.MaxConcurrentDispatch != 16 {
		t.Fatalf("unexpected dispatch concurrency %d", conf.MaxConcurrentDispatch)
	}
	if conf.MaxConcurrentPerAgent != 5 {
		t.Fatalf("unexpected per-agent concurrency %d", conf.MaxConcurrentPerAgent)
	}
	if conf.HandlerTimeoutDefault != 30*time.Second {
		t.Fatalf("unexpected handler timeout %v", conf.HandlerTimeoutDefault)
	}
	if conf.ThreadTokenBudgetDefault != 100000 {
		t.Fatalf("unexpected token budget %d", conf.ThreadTokenBudgetDefault)
	}
	if conf.IngressTopic != "xmlpipeline.ingress" || conf.EgressTopic != "xmlpipeline.egress" {
		t.Fatalf("unexpected topics %q/%q", conf.IngressTopic, conf.EgressTopic)
	}
	if conf.Meta.Schema != MetaPolicyAuthenticated || conf.Meta.Prompt != MetaPolicyAdmin {
		t.Fatalf("unexpected meta policy %+v", conf.Meta)
	}
	if conf.IntrospectionPort != 8081 {
		t.Fatalf("unexpected introspection port %d", conf.IntrospectionPort)
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	conf := Config{
		OrganismName:     "worker-7",
		ThreadScheduling: SchedulingDepthFirst,
		FairnessWindow:   9,
	}
	conf.Normalize()

	if conf.OrganismName != "worker-7" {
		t.Fatalf("organism name overwritten: %q", conf.OrganismName)
	}
	if conf.ThreadScheduling != SchedulingDepthFirst {
		t.Fatalf("scheduling overwritten: %q", conf.ThreadScheduling)
	}
	if conf.FairnessWindow != 9 {
		t.Fatalf("fairness window overwritten: %d", conf.FairnessWindow)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown scheduling",
			mutate: func(c *Config) { c.ThreadScheduling = "random" },
			want:   "unknown policy",
		},
		{
			name:   "negative fairness window",
			mutate: func(c *Config) { c.FairnessWindow = -1 },
			want:   "fairness window",
		},
		{
			name:   "negative timeout",
			mutate: func(c *Config) { c.HandlerTimeoutDefault = -time.Second },
			want:   "handler timeout",
		},
		{
			name:   "negative token budget",
			mutate: func(c *Config) { c.ThreadTokenBudgetDefault = -5 },
			want:   "token budget",
		},
		{
			name:   "invalid meta policy",
			mutate: func(c *Config) { c.Meta.Schema = "open" },
			want:   "invalid schema policy",
		},
		{
			name:   "port out of range",
			mutate: func(c *Config) { c.IntrospectionPort = 70000 },
			want:   "invalid port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var conf Config
			conf.Normalize()
			tt.mutate(&conf)
			err := conf.Validate()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %q", tt.want, err.Error())
			}
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	var conf Config
	conf.Normalize()
	conf.ThreadScheduling = "random"
	conf.Meta.Prompt = "open"

	err := conf.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, want := range []string{"unknown policy", "invalid prompt policy"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected joined error containing %q, got %q", want, err.Error())
		}
	}
}

func TestValidateConfigNil(t *testing.T) {
	if err := ValidateConfig(nil); err == nil {
		t.Fatal("expected an error for nil config")
	}
}

func TestLoadFromEnvAppliesPrefix(t *testing.T) {
	t.Setenv("XMLPIPELINE_ORGANISM_NAME", "env-organism")
	t.Setenv("XMLPIPELINE_THREAD_SCHEDULING", SchedulingDepthFirst)
	t.Setenv("XMLPIPELINE_FAIRNESS_WINDOW", "7")

	conf, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conf.OrganismName != "env-organism" {
		t.Fatalf("unexpected organism name %q", conf.OrganismName)
	}
	if conf.ThreadScheduling != SchedulingDepthFirst {
		t.Fatalf("unexpected scheduling %q", conf.ThreadScheduling)
	}
	if conf.FairnessWindow != 7 {
		t.Fatalf("unexpected fairness window %d", conf.FairnessWindow)
	}
}

func TestConfigStringDoesNotRecurse(t *testing.T) {
	var conf Config
	conf.Normalize()
	if s := conf.String(); !strings.Contains(s, "organism") {
		t.Fatalf("unexpected String output %q", s)
	}
}
