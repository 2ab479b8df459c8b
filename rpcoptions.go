package escore

import "time"

// Direction selects which way a read walks a stream.
type Direction int

const (
	Forwards Direction = iota
	Backwards
)

type fromKind int

const (
	fromStart fromKind = iota
	fromEnd
	fromRevision
)

// From selects the cursor a read or subscription starts at. Start/End are
// inclusive on the first chunk only; a numeric revision (via AtRevision) is
// always exclusive — AtRevision(0) forward yields revision 1 first.
type From struct {
	kind     fromKind
	revision uint64
}

// Start is the inclusive-on-first-chunk beginning of the stream.
func Start() From { return From{kind: fromStart} }

// End is the inclusive-on-first-chunk end of the stream (for Backwards reads).
func End() From { return From{kind: fromEnd} }

// AtRevision resumes exclusively after the given revision.
func AtRevision(revision uint64) From { return From{kind: fromRevision, revision: revision} }

// FilterOptions is an opaque server-side filter descriptor, passed through
// to the server untouched.
type FilterOptions struct {
	Expression string
	ByType     bool
}

type expectKind int

const (
	expectAny expectKind = iota
	expectExists
	expectEmpty
	expectRevision
)

// Expectation is an append/delete precondition on stream state.
type Expectation struct {
	kind     expectKind
	revision uint64
}

// Any accepts the append/delete regardless of current stream state.
func Any() Expectation { return Expectation{kind: expectAny} }

// Exists requires the stream to already exist.
func Exists() Expectation { return Expectation{kind: expectExists} }

// Empty requires the stream to not yet exist (or be empty).
func Empty() Expectation { return Expectation{kind: expectEmpty} }

// ExpectRevision requires the stream to be at exactly this revision.
func ExpectRevision(revision uint64) Expectation {
	return Expectation{kind: expectRevision, revision: revision}
}

// ReadOptions configures ReadChunk, Stream and Subscribe.
type ReadOptions struct {
	// From selects the starting cursor. Zero value is Start().
	From From
	// Direction selects forward or backward traversal.
	Direction Direction
	// ChunkSize bounds each underlying RPC issued by Stream. For Subscribe it
	// sets how many undelivered notifications may queue before the
	// subscription is cancelled as a slow consumer.
	ChunkSize int
	// MaxCount bounds a single ReadChunk call; zero or negative means 100.
	MaxCount int
	// Filter, if non-nil, is passed through to the server untouched.
	Filter *FilterOptions
	// ResolveLinks controls link-event resolution; defaults to true.
	ResolveLinks *bool
	// Timeout bounds the request (or, for Stream, each chunk's request).
	Timeout time.Duration
	// Raw suppresses conversion to the domain Event object.
	Raw bool
}

func (o ReadOptions) resolveLinks() bool {
	if o.ResolveLinks == nil {
		return true
	}
	return *o.ResolveLinks
}

// AppendOptions configures Append.
type AppendOptions struct {
	Expect  Expectation
	Timeout time.Duration
	// Raw suppresses conversion of the append result to a plain error-only
	// outcome, returning the full wire result instead via AppendResult.
	Raw bool
}

// AppendResult is the full server response to Append when Raw is set.
type AppendResult struct {
	Success         bool
	CurrentRevision uint64
	NextRevision    uint64
}

// DeleteOptions configures Delete.
type DeleteOptions struct {
	Expect    Expectation
	Tombstone bool
	Timeout   time.Duration
}
