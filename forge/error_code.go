package forge

const (
	// INVALID_ARGUMENT_ERROR_CODE represents an error for invalid input arguments.
	INVALID_ARGUMENT_ERROR_CODE = 3
	// NOT_FOUND_ERROR_CODE represents an error for a node, item, quest line or upgrade missing from loaded data.
	NOT_FOUND_ERROR_CODE = 5
	// FAILED_PRECONDITION_ERROR_CODE represents an error for unmet prerequisites, gates or insufficient resources.
	FAILED_PRECONDITION_ERROR_CODE = 9
	// RESOURCE_EXHAUSTED_ERROR_CODE represents a host-side rate limit rejection.
	RESOURCE_EXHAUSTED_ERROR_CODE = 8
	// UNIMPLEMENTED_ERROR_CODE represents an error for a host that was not configured with game data.
	UNIMPLEMENTED_ERROR_CODE = 12
	// INTERNAL_ERROR_CODE represents an internal error such as a storage failure.
	INTERNAL_ERROR_CODE = 13
)
