package corestep

// PartitionOwner is a worker-local view of who owns a partition: which
// worker runs it, which RPC-addressable task backs that worker, and the
// partition id itself. Stable within a super-step (spec.md §3).
type PartitionOwner struct {
	PartitionID PartitionID
	WorkerID    WorkerID
	TaskID      TaskID
}

// OwnerLookup is the collaborator contract consumed by the core for
// resolving a destination vertex to its owning partition (spec.md §6).
// Implementations must answer in O(1) and must be stable for the
// duration of a super-step; the core never mutates the lookup.
type OwnerLookup interface {
	// Owner resolves id to its owning PartitionOwner. ok is false if the
	// id cannot be resolved (e.g. an algorithm sending to an id that has
	// not been ingested anywhere).
	Owner(id VertexID) (owner PartitionOwner, ok bool)

	// LocalTaskID returns the TaskID of the calling worker, used by the
	// cache to decide whether a destination is a local short-circuit.
	LocalTaskID() TaskID
}

// StaticOwnerLookup is a simple OwnerLookup backed by a fixed map,
// suitable for tests and for single-phase jobs where partition
// assignment does not change mid-run.
type StaticOwnerLookup struct {
	owners      map[string]PartitionOwner
	localTaskID TaskID
}

// NewStaticOwnerLookup builds a StaticOwnerLookup for the given worker's
// local task id.
func NewStaticOwnerLookup(localTaskID TaskID) *StaticOwnerLookup {
	return &StaticOwnerLookup{owners: make(map[string]PartitionOwner), localTaskID: localTaskID}
}

// Assign records the owner of id.
func (s *StaticOwnerLookup) Assign(id VertexID, owner PartitionOwner) {
	s.owners[id.String()] = owner
}

func (s *StaticOwnerLookup) Owner(id VertexID) (PartitionOwner, bool) {
	o, ok := s.owners[id.String()]
	return o, ok
}

func (s *StaticOwnerLookup) LocalTaskID() TaskID { return s.localTaskID }
