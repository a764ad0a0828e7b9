package corestep

import "github.com/hashicorp/go-multierror"

// Serialisability selects the discipline PartitionExecutor uses to keep
// concurrent compute threads from racing on shared boundary state
// (spec.md §4.4).
type Serialisability int

const (
	// SerialNone runs every vertex unconditionally (regular policy).
	SerialNone Serialisability = iota
	// SerialToken gates boundary vertices on global/local tokens.
	SerialToken
	// SerialVertexLock uses per-vertex hygienic dining philosophers.
	SerialVertexLock
	// SerialPartitionLock uses per-partition hygienic dining
	// philosophers.
	SerialPartitionLock
)

func (s Serialisability) String() string {
	switch s {
	case SerialNone:
		return "none"
	case SerialToken:
		return "token"
	case SerialVertexLock:
		return "vertex-lock"
	case SerialPartitionLock:
		return "partition-lock"
	default:
		return "unknown"
	}
}

// AsyncConfig recognises the execution-discipline options named in
// spec.md §3 and §6. The zero value is plain synchronous BSP.
type AsyncConfig struct {
	// IsAsync switches from BSP to an asynchronous discipline (AP or
	// BAP depending on DisableBarriers).
	IsAsync bool
	// DisableBarriers, when IsAsync is set, selects BAP (barrierless
	// async) over AP (async with barriers).
	DisableBarriers bool
	// NeedAllMsgs switches MessageStore to overwrite-by-source
	// semantics and read-without-drain (spec.md §4.1, §4.4).
	NeedAllMsgs bool
	// MultiPhase enables the next-phase remote/local store rotation in
	// ServerData (spec.md §4.3).
	MultiPhase bool

	// Serialisability selects the discipline described above.
	Serialisability Serialisability

	// DoRemoteRead / DoLocalRead name whether remote and local stores
	// respectively are read. Both default to true. The executor does not
	// consult either flag: it always reads a vertex's messages from the
	// single store (or source store) handed to RunSuperstep.
	DoRemoteRead bool
	DoLocalRead  bool

	// MaxSupersteps bounds the logical super-step count; once reached a
	// vertex votes to halt unconditionally on its next invocation
	// (spec.md §4.4).
	MaxSupersteps int

	// MaxMessageBytesPerWorker is the RequestProcessor per-worker cache
	// flush threshold (spec.md §4.2).
	MaxMessageBytesPerWorker int

	// MaxMessageBytesPerVertex caps how many undelivered bytes may
	// accumulate in a worker's cache for a single destination vertex
	// between flushes. Exceeding it raises KindPayloadTooLarge unless
	// EnableBigBuffer is set (spec.md §4.2, §7).
	MaxMessageBytesPerVertex int

	// EnableBigBuffer disables the per-vertex accumulated-byte check,
	// for callers that intentionally let one vertex's inbox grow past
	// MaxMessageBytesPerVertex before a flush drains it.
	EnableBigBuffer bool

	// InitialCacheSlack pre-sizes each per-worker cache bucket to avoid
	// early reallocation churn.
	InitialCacheSlack int
}

// DefaultAsyncConfig returns the zero-value-safe defaults: synchronous
// BSP, no serialisability, both read flags on, and reasonable cache
// sizing.
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{
		DoRemoteRead:             true,
		DoLocalRead:              true,
		MaxSupersteps:            0,
		MaxMessageBytesPerWorker: 4 << 20,
		MaxMessageBytesPerVertex: 1 << 20,
		InitialCacheSlack:        16,
	}
}

// Validate rejects configuration combinations the engine does not
// support, matching spec.md §7's KindUnsupportedConfig, fatal at
// configuration time. Errors accumulate via multierror so an operator
// sees every problem in one pass, following the teacher's
// Config.Validate convention.
func (c AsyncConfig) Validate() error {
	var err error
	if !c.IsAsync && c.DisableBarriers {
		err = multierror.Append(err, NewError(KindUnsupportedConfig, "disableBarriers requires isAsync", nil))
	}
	if !c.IsAsync && c.Serialisability != SerialNone {
		err = multierror.Append(err, NewError(KindUnsupportedConfig, "token/lock serialisability is not supported under pure BSP", nil))
	}
	if c.MultiPhase && !c.IsAsync {
		err = multierror.Append(err, NewError(KindUnsupportedConfig, "multiPhase requires isAsync", nil))
	}
	if c.MaxMessageBytesPerWorker <= 0 {
		err = multierror.Append(err, NewError(KindUnsupportedConfig, "maxMessageBytesPerWorker must be positive", nil))
	}
	if !c.EnableBigBuffer && c.MaxMessageBytesPerVertex <= 0 {
		err = multierror.Append(err, NewError(KindUnsupportedConfig, "maxMessageBytesPerVertex must be positive unless enableBigBuffer is set", nil))
	}
	return err
}

// HideMessages reports whether compute should see no messages at all
// for the given logical super-step under this configuration (spec.md
// §4.4: "logical super-step 0 under async hides all messages").
func (c AsyncConfig) HideMessages(logicalSuperstep int) bool {
	return c.IsAsync && logicalSuperstep == 0
}

// ReachedMaxSupersteps reports whether the logical super-step count has
// reached the configured ceiling, past which every vertex votes to halt
// unconditionally on its next invocation.
func (c AsyncConfig) ReachedMaxSupersteps(logicalSuperstep int) bool {
	return c.MaxSupersteps > 0 && logicalSuperstep >= c.MaxSupersteps
}
