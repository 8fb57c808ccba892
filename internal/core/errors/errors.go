package errors

import sterrors "errors"

var (
	ErrHandlerRequired        = sterrors.New("xmlpipeline: handler function is required")
	ErrListenerNameRequired   = sterrors.New("xmlpipeline: listener name is required")
	ErrDescriptionRequired    = sterrors.New("xmlpipeline: listener description is required")
	ErrPrototypeRequired      = sterrors.New("xmlpipeline: payload prototype is required")
	ErrPrototypePointer       = sterrors.New("xmlpipeline: payload prototype must be a pointer to a struct")
	ErrRootTagCollision       = sterrors.New("xmlpipeline: root tag already registered")
	ErrNameCollision          = sterrors.New("xmlpipeline: listener name already registered")
	ErrAgentBroadcast         = sterrors.New("xmlpipeline: agent listeners cannot broadcast")
	ErrAgentRootTagShared     = sterrors.New("xmlpipeline: agent listeners require a unique root tag")
	ErrBroadcastShapeMismatch = sterrors.New("xmlpipeline: broadcast listeners must share an identical payload shape")
	ErrUnknownPeer            = sterrors.New("xmlpipeline: peer references an unregistered listener")
	ErrListenerNotFound       = sterrors.New("xmlpipeline: listener is not registered")
	ErrThreadNotFound         = sterrors.New("xmlpipeline: thread is not registered")
	ErrChainExhausted         = sterrors.New("xmlpipeline: call chain is empty")
	ErrChainTooLong           = sterrors.New("xmlpipeline: call chain exceeds the configured ceiling")
	ErrEnvelopeMalformed      = sterrors.New("xmlpipeline: envelope is malformed")
	ErrPayloadMissing         = sterrors.New("xmlpipeline: envelope carries no payload root")
	ErrPayloadAmbiguous       = sterrors.New("xmlpipeline: envelope carries more than one payload root")
	ErrUnrepresentableField   = sterrors.New("xmlpipeline: payload field type cannot be represented in a schema")
	ErrPayloadTypeMismatch    = sterrors.New("xmlpipeline: payload type does not match the registered prototype")
	ErrSchedulerClosed        = sterrors.New("xmlpipeline: scheduler is closed")
)
