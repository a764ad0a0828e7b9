package corestep

// Edge represents a directed out-edge from a Vertex, mirroring the
// teacher's bspgraph.Edge but carrying a VertexID destination instead of
// a bare string so the core stays polymorphic over id representations.
type Edge struct {
	dstID VertexID
	value interface{}
}

// NewEdge constructs an Edge targeting dstID with the given value.
func NewEdge(dstID VertexID, value interface{}) *Edge {
	return &Edge{dstID: dstID, value: value}
}

// DstID returns the id of this edge's target endpoint.
func (e *Edge) DstID() VertexID { return e.dstID }

// Value returns the value associated with this edge.
func (e *Edge) Value() interface{} { return e.value }

// SetValue sets the value associated with this edge.
func (e *Edge) SetValue(val interface{}) { e.value = val }

// Vertex is owned exclusively by one Partition for the duration of a
// super-step; every field read/write during that super-step happens
// from a single compute thread (spec.md §3).
type Vertex struct {
	id     VertexID
	value  interface{}
	edges  []*Edge
	halted bool
}

// NewVertex constructs a Vertex with the given id and initial value. A
// freshly created vertex is never halted — it must run through compute
// at least once before it can vote to halt.
func NewVertex(id VertexID, value interface{}) *Vertex {
	return &Vertex{id: id, value: value}
}

// ID returns the vertex id.
func (v *Vertex) ID() VertexID { return v.id }

// Value returns the value currently associated with this vertex.
func (v *Vertex) Value() interface{} { return v.value }

// SetValue replaces the value associated with this vertex.
func (v *Vertex) SetValue(val interface{}) { v.value = val }

// Edges returns the vertex's ordered out-edges.
func (v *Vertex) Edges() []*Edge { return v.edges }

// AddEdge appends a new out-edge to dstID with the given value.
func (v *Vertex) AddEdge(dstID VertexID, value interface{}) {
	v.edges = append(v.edges, NewEdge(dstID, value))
}

// Halted reports whether the vertex voted to halt and has not since been
// woken up by an incoming message.
func (v *Vertex) Halted() bool { return v.halted }

// VoteToHalt marks the vertex as halted. A halted vertex with no
// incoming messages and no wake-up stays halted (spec.md §8).
func (v *Vertex) VoteToHalt() { v.halted = true }

// WakeUp clears the halted flag; called by the executor when a halted
// vertex has pending messages.
func (v *Vertex) WakeUp() { v.halted = false }

// Partition is exclusively owned by whichever compute thread currently
// dequeued it (spec.md §3). Vertex insertion order in the map is
// irrelevant; iteration order is therefore not guaranteed stable.
type Partition struct {
	id       PartitionID
	vertices map[string]*Vertex
}

// NewPartition creates an empty Partition with the given id.
func NewPartition(id PartitionID) *Partition {
	return &Partition{id: id, vertices: make(map[string]*Vertex)}
}

// ID returns the partition id.
func (p *Partition) ID() PartitionID { return p.id }

// Vertices returns the partition's vertex map keyed by the id's string
// form. Callers holding the partition for its super-step's duration may
// mutate the returned map; concurrent access from another thread is a
// programming error.
func (p *Partition) Vertices() map[string]*Vertex { return p.vertices }

// Vertex looks up a vertex by id, returning nil if absent.
func (p *Partition) Vertex(id VertexID) *Vertex {
	return p.vertices[id.String()]
}

// AddVertex inserts v into the partition, keyed by its id's string form.
// A vertex may be created lazily on first message delivery under BSP
// (spec.md §3); callers creating vertices this way must still supply a
// Vertex so the partition can track it.
func (p *Partition) AddVertex(v *Vertex) {
	p.vertices[v.ID().String()] = v
}

// RemoveVertex deletes the vertex with the given id from the partition.
// Used by k-core-style algorithms that signal their own removal; the
// vertex resolver that re-creates vertices lazily must never recreate a
// vertex removed this way (spec.md §8 scenario 5).
func (p *Partition) RemoveVertex(id VertexID) {
	delete(p.vertices, id.String())
}

// AllHalted reports whether every vertex currently in the partition is
// halted.
func (p *Partition) AllHalted() bool {
	for _, v := range p.vertices {
		if !v.Halted() {
			return false
		}
	}
	return true
}
