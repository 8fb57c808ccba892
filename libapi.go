package xmlpipeline

import (
	"context"

	corepkg "github.com/dullfig/xml-pipeline/internal/core"
	configpkg "github.com/dullfig/xml-pipeline/internal/core/config"
	envelopepkg "github.com/dullfig/xml-pipeline/internal/core/envelope"
	errspkg "github.com/dullfig/xml-pipeline/internal/core/errors"
	handlerpkg "github.com/dullfig/xml-pipeline/internal/core/handlers"
	idspkg "github.com/dullfig/xml-pipeline/internal/core/ids"
	loggingpkg "github.com/dullfig/xml-pipeline/internal/core/logging"
	registrypkg "github.com/dullfig/xml-pipeline/internal/core/registry"
)

type (
	Config               = configpkg.Config
	MetaPolicy           = configpkg.MetaPolicy
	Organism             = corepkg.Organism
	OrganismDependencies = corepkg.OrganismDependencies

	Registration = registrypkg.Registration
	Listener     = registrypkg.Listener
	PayloadType  = registrypkg.PayloadType
	Field        = registrypkg.Field
	SchemaStore  = registrypkg.SchemaStore

	Metadata      = handlerpkg.Metadata
	Raw           = handlerpkg.Raw
	Response      = handlerpkg.Response
	HandlerFunc   = handlerpkg.HandlerFunc
	Completer     = handlerpkg.Completer
	ChatMessage   = handlerpkg.ChatMessage
	TokenUsage    = handlerpkg.TokenUsage
	UsageReporter = handlerpkg.UsageReporter

	Envelope    = envelopepkg.Envelope
	Huh         = envelopepkg.Huh
	SystemError = envelopepkg.SystemError

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
)

// Scheduling policies and meta policy levels for Config.
const (
	SchedulingBreadthFirst = configpkg.SchedulingBreadthFirst
	SchedulingDepthFirst   = configpkg.SchedulingDepthFirst

	MetaPolicyNone          = configpkg.MetaPolicyNone
	MetaPolicyAuthenticated = configpkg.MetaPolicyAuthenticated
	MetaPolicyAdmin         = configpkg.MetaPolicyAdmin
)

// Envelope namespaces and reserved sender names.
const (
	EnvelopeNamespace = envelopepkg.Namespace
	CoreNamespace     = envelopepkg.CoreNamespace
	SenderCore        = envelopepkg.SenderCore
	SenderSystem      = envelopepkg.SenderSystem
)

// SystemError codes.
const (
	CodeRouting    = envelopepkg.CodeRouting
	CodeValidation = envelopepkg.CodeValidation
	CodeTimeout    = envelopepkg.CodeTimeout
	CodeBudget     = envelopepkg.CodeBudget
)

var (
	NewOrganism    = corepkg.NewOrganism
	LoadFromEnv    = configpkg.LoadFromEnv
	ValidateConfig = configpkg.ValidateConfig

	Respond     = handlerpkg.Respond
	Forward     = handlerpkg.Forward
	ReportUsage = handlerpkg.ReportUsage

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NopLogger                 = loggingpkg.NopLogger

	NewSchemaStore = registrypkg.NewSchemaStore
	DeriveRootTag  = registrypkg.DeriveRootTag

	CreateULID  = idspkg.CreateULID
	NewThreadID = idspkg.NewThreadID

	ErrRootTagCollision       = errspkg.ErrRootTagCollision
	ErrNameCollision          = errspkg.ErrNameCollision
	ErrAgentRootTagShared     = errspkg.ErrAgentRootTagShared
	ErrAgentBroadcast         = errspkg.ErrAgentBroadcast
	ErrBroadcastShapeMismatch = errspkg.ErrBroadcastShapeMismatch
	ErrUnknownPeer            = errspkg.ErrUnknownPeer
	ErrListenerNotFound       = errspkg.ErrListenerNotFound
	ErrThreadNotFound         = errspkg.ErrThreadNotFound
	ErrEnvelopeMalformed      = errspkg.ErrEnvelopeMalformed
)

// Typed adapts a strongly-typed handler onto the dynamic HandlerFunc shape.
func Typed[T any](handler func(ctx context.Context, payload *T, meta Metadata) (*Response, error)) HandlerFunc {
	return handlerpkg.Typed(handler)
}

// Prototype returns a fresh zero value of T for Registration.Prototype.
func Prototype[T any]() any {
	return handlerpkg.Prototype[T]()
}
