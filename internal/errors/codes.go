package errors

import "net/http"

// Kind classifies an error. The set is closed; each kind maps to a
// stable JSON-RPC wire code and an HTTP status.
type Kind string

const (
	// KindInvalidInput indicates a schema or value violation.
	KindInvalidInput Kind = "invalid_input"
	// KindNotFound indicates a missing or inactive entity.
	KindNotFound Kind = "not_found"
	// KindAccessDenied indicates the caller may not operate on the entity.
	KindAccessDenied Kind = "access_denied"
	// KindContextNotFound is the NotFound specialization for contexts.
	KindContextNotFound Kind = "context_not_found"
	// KindEncodingUnknown indicates ingestion could not decode its input.
	KindEncodingUnknown Kind = "encoding_unknown"
	// KindCorrupted indicates a content hash mismatch or chunk gap on read.
	KindCorrupted Kind = "corrupted"
	// KindStorageFailure indicates a primary-store error.
	KindStorageFailure Kind = "storage_failure"
	// KindOverloaded indicates a bounded queue rejected the caller.
	KindOverloaded Kind = "overloaded"
	// KindDeadlineExceeded indicates the operation deadline passed.
	KindDeadlineExceeded Kind = "deadline_exceeded"
	// KindNotImplemented indicates an optional contract absent in this build.
	KindNotImplemented Kind = "not_implemented"
	// KindInternal covers unclassified failures. Not part of the wire
	// contract; surfaces as a storage failure code.
	KindInternal Kind = "internal"
)

// Wire codes are the stable numeric contract shared by MCP and REST
// error bodies. They never change between releases.
const (
	CodeInvalidInput     = -32602
	CodeNotFound         = -32010
	CodeAccessDenied     = -32011
	CodeContextNotFound  = -32012
	CodeEncodingUnknown  = -32020
	CodeCorrupted        = -32030
	CodeStorageFailure   = -32040
	CodeOverloaded       = -32050
	CodeDeadlineExceeded = -32060
	CodeNotImplemented   = -32601
)

// WireCode returns the stable numeric code for the kind.
func (k Kind) WireCode() int {
	switch k {
	case KindInvalidInput:
		return CodeInvalidInput
	case KindNotFound:
		return CodeNotFound
	case KindAccessDenied:
		return CodeAccessDenied
	case KindContextNotFound:
		return CodeContextNotFound
	case KindEncodingUnknown:
		return CodeEncodingUnknown
	case KindCorrupted:
		return CodeCorrupted
	case KindOverloaded:
		return CodeOverloaded
	case KindDeadlineExceeded:
		return CodeDeadlineExceeded
	case KindNotImplemented:
		return CodeNotImplemented
	default:
		return CodeStorageFailure
	}
}

// HTTPStatus returns the REST status for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound, KindContextNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindEncodingUnknown:
		return http.StatusUnprocessableEntity
	case KindOverloaded:
		return http.StatusTooManyRequests
	case KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// retryableByDefault marks the kinds where a retry can plausibly succeed.
// Validation and access failures never are. Transient upstream failures
// (embedding HTTP, vector index, cache) are marked retryable at the call
// site via AsRetryable.
func (k Kind) retryableByDefault() bool {
	return k == KindOverloaded
}
