package model

// pipelineError is a failure class. Wrap it with fmt.Errorf("%w: ...") and
// match with errors.Is.
type pipelineError struct {
	msg       string
	kind      string
	retryable bool
}

func (e *pipelineError) Error() string   { return e.msg }
func (e *pipelineError) Retryable() bool { return e.retryable }
func (e *pipelineError) Kind() string    { return e.kind }

var (
	// 终止性错误：记录日志并跳过
	ErrMalformedMessage   = &pipelineError{msg: "malformed message", kind: "malformed_message"}
	ErrUnparsableResponse = &pipelineError{msg: "unparsable model response", kind: "unparsable_response"}
	ErrObjectNotFound     = &pipelineError{msg: "object not found", kind: "not_found"}
	ErrInvalidPayload     = &pipelineError{msg: "invalid payload", kind: "invalid_payload"}

	// 可重试错误：传播给传输层重新投递
	ErrModelInvocation     = &pipelineError{msg: "model invocation failed", kind: "model_invocation", retryable: true}
	ErrStorageUnavailable  = &pipelineError{msg: "object storage unavailable", kind: "storage_unavailable", retryable: true}
	ErrOutboundUnavailable = &pipelineError{msg: "outbound channel unavailable", kind: "outbound_unavailable", retryable: true}
	ErrLookupUnavailable   = &pipelineError{msg: "user lookup unavailable", kind: "lookup_unavailable", retryable: true}
)
