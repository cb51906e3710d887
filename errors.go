package halloc

import "github.com/cockroachdb/errors"

// ErrSegmentProviderRequired is returned by New when called with a nil
// SegmentProvider.
var ErrSegmentProviderRequired = errors.New("halloc: segment provider is required")

// ErrSegmentInit wraps a failure from SegmentProvider.InitHeapSegment.
var ErrSegmentInit = errors.New("halloc: segment provider failed to initialize heap segment")
