package event

// Canonical event names, following the domain:action[:phase]
// convention. The taxonomy is fixed: handlers and extensions share this
// vocabulary, so additions belong here rather than in ad-hoc strings.
const (
	AgentInitBefore = "agent:init:before"
	AgentInitAfter  = "agent:init:after"
	AgentCloseBefore = "agent:close:before"
	AgentCloseAfter  = "agent:close:after"
	AgentStateChange = "agent:state:change"
	AgentForkBefore  = "agent:fork:before"
	AgentForkAfter   = "agent:fork:after"

	MessageCreateBefore  = "message:create:before"
	MessageCreateAfter   = "message:create:after"
	MessageAppendBefore  = "message:append:before"
	MessageAppendAfter   = "message:append:after"
	MessageReplaceBefore = "message:replace:before"
	MessageReplaceAfter  = "message:replace:after"
	MessageRenderBefore  = "message:render:before"
	MessageRenderAfter   = "message:render:after"

	LLMCompleteBefore = "llm:complete:before"
	LLMCompleteAfter  = "llm:complete:after"
	LLMCompleteError  = "llm:complete:error"
	LLMStreamBefore   = "llm:stream:before"
	LLMStreamChunk    = "llm:stream:chunk"
	LLMStreamAfter    = "llm:stream:after"
	LLMStreamError    = "llm:stream:error"

	ToolCallBefore = "tool:call:before"
	ToolCallAfter  = "tool:call:after"
	ToolCallError  = "tool:call:error"
	ToolsProvide   = "tools:provide"

	ExecuteBefore          = "execute:before"
	ExecuteAfter           = "execute:after"
	ExecuteError           = "execute:error"
	ExecuteIterationBefore = "execute:iteration:before"
	ExecuteIterationAfter  = "execute:iteration:after"
	ExecuteIterationError  = "execute:iteration:error"

	ModeEntering   = "mode:entering"
	ModeEntered    = "mode:entered"
	ModeExiting    = "mode:exiting"
	ModeExited     = "mode:exited"
	ModeError      = "mode:error"
	ModeTransition = "mode:transition"
)

// Extension-point event names: the kernel itself never calls Apply/Do with
// these, but documents them so integrations share a vocabulary when they
// want to publish storage/cache lifecycle events of their own.
const (
	ExtStorageSaveBefore = "storage:save:before"
	ExtStorageSaveAfter  = "storage:save:after"
	ExtStorageSaveError  = "storage:save:error"
	ExtStorageLoadBefore = "storage:load:before"
	ExtStorageLoadAfter  = "storage:load:after"
	ExtStorageLoadError  = "storage:load:error"
	ExtCacheHit          = "cache:hit"
	ExtCacheMiss         = "cache:miss"
	ExtCacheSet          = "cache:set"
	ExtCacheInvalidate   = "cache:invalidate"
)
