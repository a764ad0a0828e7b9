// Package serverdata owns the message-store lifecycle a worker rotates
// through at super-step (and, under multi-phase async, execution-phase)
// boundaries, per spec.md §4.3:
//
//   - Plain BSP rotates two generations: the store messages landed in
//     during the superstep just finished becomes the readable "current"
//     store, and a fresh store takes over as the write target.
//   - Asynchronous disciplines keep persistent remote and local stores
//     that are written and drained continuously, with no superstep-end
//     rotation.
//   - Multi-phase async additionally promotes a "next phase" pair of
//     stores into the active remote/local pair at a phase boundary.
package serverdata

import (
	"sync"

	"github.com/vertexmesh/corestep/pkg/corestep"
	"github.com/vertexmesh/corestep/pkg/message"
)

// ServerData holds every message store a worker needs across the
// execution disciplines named in corestep.AsyncConfig, and knows how to
// rotate them at the right boundary.
type ServerData struct {
	config corestep.AsyncConfig

	mu sync.Mutex

	// BSP generations.
	bspCurrent  *message.Store
	bspIncoming *message.Store

	// Async persistent stores, written and drained continuously.
	remote *message.Store
	local  *message.Store

	// Multi-phase staging: messages destined for the phase after next
	// land here so they don't leak into the phase currently running.
	nextPhaseRemote *message.Store
	nextPhaseLocal  *message.Store

	// needAllMsgs variants, mirroring the same rotation rules.
	sourceCurrent  *message.SourceStore
	sourceIncoming *message.SourceStore
}

// New builds a ServerData sized for the given configuration.
func New(config corestep.AsyncConfig) *ServerData {
	sd := &ServerData{config: config}
	if config.NeedAllMsgs {
		sd.sourceCurrent = message.NewSourceStore()
		sd.sourceIncoming = message.NewSourceStore()
		return sd
	}
	if config.IsAsync {
		sd.remote = message.New()
		sd.local = message.New()
		if config.MultiPhase {
			sd.nextPhaseRemote = message.New()
			sd.nextPhaseLocal = message.New()
		}
		return sd
	}
	sd.bspCurrent = message.New()
	sd.bspIncoming = message.New()
	return sd
}

// IncomingStore returns the store that newly arriving messages for the
// super-step in progress should be written into.
func (sd *ServerData) IncomingStore() *message.Store {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	if sd.config.IsAsync {
		return sd.remote
	}
	return sd.bspIncoming
}

// CurrentStore returns the store compute threads should drain from for
// the super-step in progress.
func (sd *ServerData) CurrentStore() *message.Store {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	if sd.config.IsAsync {
		return sd.remote
	}
	return sd.bspCurrent
}

// LocalStore returns the persistent local store used by the async
// disciplines for same-worker traffic. Returns nil under plain BSP.
func (sd *ServerData) LocalStore() *message.Store {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return sd.local
}

// SourceCurrentStore / SourceIncomingStore mirror IncomingStore /
// CurrentStore for the needAllMsgs discipline.
func (sd *ServerData) SourceCurrentStore() *message.SourceStore {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return sd.sourceCurrent
}

func (sd *ServerData) SourceIncomingStore() *message.SourceStore {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return sd.sourceIncoming
}

// PrepareSuperstep performs the BSP rotation: the store that absorbed
// this super-step's sends becomes the next super-step's readable store,
// and a fresh store takes its place as the write target. A no-op under
// any asynchronous discipline, whose stores persist across
// super-steps.
func (sd *ServerData) PrepareSuperstep() {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	if sd.config.IsAsync {
		if sd.config.NeedAllMsgs {
			sd.sourceCurrent, sd.sourceIncoming = sd.sourceIncoming, sd.sourceCurrent
		}
		return
	}
	if sd.config.NeedAllMsgs {
		sd.sourceCurrent, sd.sourceIncoming = sd.sourceIncoming, message.NewSourceStore()
		return
	}
	sd.bspCurrent, sd.bspIncoming = sd.bspIncoming, message.New()
}

// PromoteNextPhase moves the next-phase remote/local stores into the
// active position and clears the staging pair, for multi-phase async
// execution (spec.md §4.3). A no-op when MultiPhase is not configured.
func (sd *ServerData) PromoteNextPhase() {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	if !sd.config.MultiPhase {
		return
	}
	sd.remote, sd.nextPhaseRemote = sd.nextPhaseRemote, message.New()
	sd.local, sd.nextPhaseLocal = sd.nextPhaseLocal, message.New()
}

// NextPhaseRemoteStore / NextPhaseLocalStore expose the staging stores
// so a sender targeting "the phase after next" (the wire-level
// forNextPhase flag on an encoded partition id, spec.md §6) can write
// into them directly. Both return nil unless MultiPhase is configured.
func (sd *ServerData) NextPhaseRemoteStore() *message.Store {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return sd.nextPhaseRemote
}

func (sd *ServerData) NextPhaseLocalStore() *message.Store {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return sd.nextPhaseLocal
}
