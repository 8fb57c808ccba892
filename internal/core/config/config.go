package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Scheduling policies accepted by Config.ThreadScheduling.
const (
	SchedulingBreadthFirst = "breadth-first"
	SchedulingDepthFirst   = "depth-first"
)

// Meta policy levels for schema/example/prompt introspection requests.
// "none" disables the request kind entirely; the other levels enable it and
// leave the authentication decision to the transport in front of the core.
const (
	MetaPolicyNone          = "none"
	MetaPolicyAuthenticated = "authenticated"
	MetaPolicyAdmin         = "admin"
)

// MetaPolicy gates the core-namespace introspection requests.
type MetaPolicy struct {
	List    bool   `envconfig:"META_LIST" default:"true"`
	Schema  string `envconfig:"META_SCHEMA" default:"authenticated"`
	Example string `envconfig:"META_EXAMPLE" default:"authenticated"`
	Prompt  string `envconfig:"META_PROMPT" default:"admin"`
}

// Config groups every tunable of the organism. Zero values fall back to
// defaults applied by Normalize.
type Config struct {
	// OrganismName identifies this instance in logs and metrics.
	OrganismName string `envconfig:"ORGANISM_NAME" default:"organism"`

	// ThreadScheduling selects the ready-queue policy: "breadth-first"
	// round-robins across active threads, "depth-first" drains one thread
	// before moving on.
	ThreadScheduling string `envconfig:"THREAD_SCHEDULING" default:"breadth-first"`

	// FairnessWindow is the maximum number of consecutive dispatches for a
	// single thread under breadth-first scheduling.
	FairnessWindow int `envconfig:"FAIRNESS_WINDOW" default:"4"`

	// MaxConcurrentDispatch bounds the pump worker pool.
	MaxConcurrentDispatch int `envconfig:"MAX_CONCURRENT_DISPATCH" default:"16"`

	// MaxConcurrentPerAgent bounds concurrent invocations of a single agent.
	MaxConcurrentPerAgent int `envconfig:"MAX_CONCURRENT_PER_AGENT" default:"5"`

	// HandlerTimeoutDefault applies to listeners that do not declare their own.
	HandlerTimeoutDefault time.Duration `envconfig:"HANDLER_TIMEOUT_DEFAULT" default:"30s"`

	// ThreadTokenBudgetDefault is the token budget attached to each new chain.
	ThreadTokenBudgetDefault int64 `envconfig:"THREAD_TOKEN_BUDGET_DEFAULT" default:"100000"`

	// MaxChainLength terminates runaway delegation chains. Zero disables the
	// ceiling.
	MaxChainLength int `envconfig:"MAX_CHAIN_LENGTH" default:"64"`

	// SchemaCacheDir is where synthesized XSDs are persisted. Empty disables
	// the disk cache.
	SchemaCacheDir string `envconfig:"SCHEMA_CACHE_DIR"`

	// IngressTopic and EgressTopic name the bus topics the pump consumes from
	// and emits external-bound messages to.
	IngressTopic string `envconfig:"INGRESS_TOPIC" default:"xmlpipeline.ingress"`
	EgressTopic  string `envconfig:"EGRESS_TOPIC" default:"xmlpipeline.egress"`

	Meta MetaPolicy

	// MetricsEnabled switches the Prometheus collectors on.
	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"false"`

	// Introspection HTTP server (capability listing + metrics endpoint).
	IntrospectionEnabled            bool     `envconfig:"INTROSPECTION_ENABLED" default:"false"`
	IntrospectionPort               int      `envconfig:"INTROSPECTION_PORT" default:"8081"`
	IntrospectionCORSAllowedOrigins []string `envconfig:"INTROSPECTION_CORS_ALLOWED_ORIGINS"`
}

// LoadFromEnv builds a Config from XMLPIPELINE_-prefixed environment
// variables.
func LoadFromEnv() (*Config, error) {
	var conf Config
	if err := envconfig.Process("xmlpipeline", &conf); err != nil {
		return nil, fmt.Errorf("xmlpipeline: loading config from environment: %w", err)
	}
	conf.Normalize()
	return &conf, conf.Validate()
}

// Normalize fills defaults for zero values so a hand-built Config behaves
// like one loaded from the environment. MaxChainLength and Meta.List are left
// as they are: a zero MaxChainLength disables the ceiling and a false
// Meta.List disables capability listing, whereas the environment defaults are
// 64 and true.
func (c *Config) Normalize() {
	if c.OrganismName == "" {
		c.OrganismName = "organism"
	}
	if c.ThreadScheduling == "" {
		c.ThreadScheduling = SchedulingBreadthFirst
	}
	if c.FairnessWindow <= 0 {
		c.FairnessWindow = 4
	}
	if c.MaxConcurrentDispatch <= 0 {
		c.MaxConcurrentDispatch = 16
	}
	if c.MaxConcurrentPerAgent <= 0 {
		c.MaxConcurrentPerAgent = 5
	}
	if c.HandlerTimeoutDefault <= 0 {
		c.HandlerTimeoutDefault = 30 * time.Second
	}
	if c.ThreadTokenBudgetDefault <= 0 {
		c.ThreadTokenBudgetDefault = 100000
	}
	if c.IngressTopic == "" {
		c.IngressTopic = "xmlpipeline.ingress"
	}
	if c.EgressTopic == "" {
		c.EgressTopic = "xmlpipeline.egress"
	}
	if c.Meta.Schema == "" {
		c.Meta.Schema = MetaPolicyAuthenticated
	}
	if c.Meta.Example == "" {
		c.Meta.Example = MetaPolicyAuthenticated
	}
	if c.Meta.Prompt == "" {
		c.Meta.Prompt = MetaPolicyAdmin
	}
	if c.IntrospectionPort == 0 {
		c.IntrospectionPort = 8081
	}
}

// Validate checks the configuration and returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateScheduling()...)
	errs = append(errs, c.validateLimits()...)
	errs = append(errs, c.validateMeta()...)
	errs = append(errs, c.validatePorts()...)

	return errors.Join(errs...)
}

func (c *Config) validateScheduling() []error {
	switch strings.ToLower(c.ThreadScheduling) {
	case SchedulingBreadthFirst, SchedulingDepthFirst:
		return nil
	}
	return []error{fmt.Errorf("scheduling: unknown policy %q", c.ThreadScheduling)}
}

func (c *Config) validateLimits() []error {
	var errs []error
	if c.FairnessWindow < 0 {
		errs = append(errs, errors.New("scheduling: fairness window cannot be negative"))
	}
	if c.MaxConcurrentDispatch < 0 {
		errs = append(errs, errors.New("dispatch: max concurrency cannot be negative"))
	}
	if c.MaxConcurrentPerAgent < 0 {
		errs = append(errs, errors.New("dispatch: per-agent concurrency cannot be negative"))
	}
	if c.HandlerTimeoutDefault < 0 {
		errs = append(errs, errors.New("dispatch: default handler timeout cannot be negative"))
	}
	if c.ThreadTokenBudgetDefault < 0 {
		errs = append(errs, errors.New("budget: default token budget cannot be negative"))
	}
	if c.MaxChainLength < 0 {
		errs = append(errs, errors.New("chain: max length cannot be negative"))
	}
	return errs
}

func (c *Config) validateMeta() []error {
	var errs []error
	for _, level := range []struct {
		name  string
		value string
	}{
		{"schema", c.Meta.Schema},
		{"example", c.Meta.Example},
		{"prompt", c.Meta.Prompt},
	} {
		switch level.value {
		case MetaPolicyNone, MetaPolicyAuthenticated, MetaPolicyAdmin:
		default:
			errs = append(errs, fmt.Errorf("meta: invalid %s policy %q", level.name, level.value))
		}
	}
	return errs
}

func (c *Config) validatePorts() []error {
	if c.IntrospectionPort < 0 || c.IntrospectionPort > 65535 {
		return []error{fmt.Errorf("introspection: invalid port %d", c.IntrospectionPort)}
	}
	return nil
}

func (c Config) String() string {
	// Type alias avoids infinite recursion when printing.
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(c))
}

// ValidateConfig is a convenience function to validate a config pointer.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
