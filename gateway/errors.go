package gateway

import "errors"

// ErrAsyncAcknowledged encodes the timeout-as-success rule in one place:
// a socket timeout on forcemerge does not mean the operation failed — the
// cluster keeps merging asynchronously. Callers that accept this rule
// (the ForceMerge engine) treat it as success; callers that don't
// propagate it.
var ErrAsyncAcknowledged = errors.New("gateway: operation timed out but is progressing asynchronously on the cluster")
