package executor

import (
	"context"

	"github.com/vertexmesh/corestep/pkg/cache"
	"github.com/vertexmesh/corestep/pkg/corestep"
	"github.com/vertexmesh/corestep/pkg/message"
	"github.com/vertexmesh/corestep/pkg/serverdata"
)

// DriverCallbacks are optional hooks invoked around each super-step,
// giving a caller a place to rotate ServerData, poll a token ring, or
// decide whether the run should keep going.
type DriverCallbacks struct {
	// PreStep runs before a super-step starts.
	PreStep func(ctx context.Context) error
	// PostStep runs after a super-step completes.
	PostStep func(ctx context.Context, stats PartitionStats) error
	// KeepRunning decides whether another super-step should run. The
	// default is "keep going while any vertex is still active".
	KeepRunning func(ctx context.Context, partitions []*corestep.Partition, stats PartitionStats) (bool, error)
}

func (cb *DriverCallbacks) patch() {
	if cb.PreStep == nil {
		cb.PreStep = func(context.Context) error { return nil }
	}
	if cb.PostStep == nil {
		cb.PostStep = func(context.Context, PartitionStats) error { return nil }
	}
	if cb.KeepRunning == nil {
		cb.KeepRunning = func(_ context.Context, partitions []*corestep.Partition, _ PartitionStats) (bool, error) {
			for _, p := range partitions {
				if !p.AllHalted() {
					return true, nil
				}
			}
			return false, nil
		}
	}
}

// Driver repeatedly runs super-steps on an Executor until the
// termination condition named in spec.md §8 is met: every vertex halted
// and no messages remain in flight, or a caller-supplied KeepRunning
// callback says to stop.
type Driver struct {
	Exec       *Executor
	Partitions []*corestep.Partition
	Callbacks  DriverCallbacks

	// ServerData, if set, supplies the readable store for each
	// super-step and the target for locally short-circuited sends, and
	// performs the BSP rotation described in spec.md §4.3 between
	// super-steps. When set it overrides the store/local arguments
	// passed to Run for every discipline except NeedAllMsgs, whose
	// source-keyed local delivery does not fit the plain
	// cache.LocalDeliverer contract; NeedAllMsgs runs keep using the
	// store/sourceStore/local arguments supplied to Run directly.
	ServerData *serverdata.ServerData
}

// NewDriver builds a Driver, filling in any unset callback with its
// default behaviour.
func NewDriver(exec *Executor, partitions []*corestep.Partition, cb DriverCallbacks) *Driver {
	cb.patch()
	return &Driver{Exec: exec, Partitions: partitions, Callbacks: cb}
}

// Run drives super-steps to completion, returning the PartitionStats of
// the final super-step run.
func (d *Driver) Run(ctx context.Context, store *message.Store, sourceStore *message.SourceStore, sender cache.WorkerMessageSender, local cache.LocalDeliverer) (PartitionStats, error) {
	var stats PartitionStats
	for {
		if err := d.Callbacks.PreStep(ctx); err != nil {
			return stats, err
		}

		readStore, readSourceStore, writeLocal := store, sourceStore, local
		if d.ServerData != nil && !d.Exec.Config.NeedAllMsgs {
			readStore = d.ServerData.CurrentStore()
			writeLocal = serverDataDeliverer{sd: d.ServerData}
		}

		var err error
		stats, err = d.Exec.RunSuperstep(ctx, d.Partitions, readStore, readSourceStore, sender, writeLocal)
		if err != nil {
			return stats, err
		}

		if err := d.Callbacks.PostStep(ctx, stats); err != nil {
			return stats, err
		}

		keepRunning, err := d.Callbacks.KeepRunning(ctx, d.Partitions, stats)
		if err != nil {
			return stats, err
		}
		if d.ServerData != nil {
			d.ServerData.PrepareSuperstep()
		}
		if !keepRunning {
			return stats, nil
		}

		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}
	}
}

// serverDataDeliverer adapts a serverdata.ServerData into a
// cache.LocalDeliverer that always targets the current incoming store,
// re-resolved on every call so a send landing after a rotation still
// goes to the right generation.
type serverDataDeliverer struct {
	sd *serverdata.ServerData
}

func (d serverDataDeliverer) AddPartitionMessage(partitionID corestep.PartitionID, destID corestep.VertexID, msg []byte) {
	d.sd.IncomingStore().AddPartitionMessage(partitionID, destID, msg)
}
