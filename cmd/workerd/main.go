// Command workerd is a small demo binary wiring the core packages into
// a single runnable worker process: one partition holding a handful of
// vertices running an SSSP-style shortest-path relaxation under the
// token serialisability discipline, with a debug HTTP endpoint and a
// token-rotation watchdog running alongside the compute driver.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vertexmesh/corestep/pkg/cache"
	"github.com/vertexmesh/corestep/pkg/corestep"
	"github.com/vertexmesh/corestep/pkg/debugserver"
	"github.com/vertexmesh/corestep/pkg/executor"
	"github.com/vertexmesh/corestep/pkg/partitiondetect"
	"github.com/vertexmesh/corestep/pkg/runtime"
	"github.com/vertexmesh/corestep/pkg/serverdata"
	"github.com/vertexmesh/corestep/pkg/token"
	"github.com/vertexmesh/corestep/pkg/transport"
	"github.com/vertexmesh/corestep/pkg/watchdog"
)

func main() {
	debugAddr := flag.String("debug-addr", ":6060", "listen address for the /debug/stats endpoint")
	maxSupersteps := flag.Int("max-supersteps", 20, "super-step ceiling before the run is forced to halt")
	flag.Parse()

	logger := logrus.NewEntry(logrus.StandardLogger())
	runID := uuid.New()
	logger = logger.WithField("run_id", runID.String())

	if err := run(*debugAddr, *maxSupersteps, logger); err != nil {
		logger.WithField("err", err).Fatal("workerd exited with an error")
	}
}

func run(debugAddr string, maxSupersteps int, logger *logrus.Entry) error {
	detector := partitiondetect.Fixed{TaskID: 0, NumWorkers: 1}
	taskID, numWorkers, err := detector.WorkerInfo()
	if err != nil {
		return err
	}
	localWorker := corestep.WorkerID(taskID)

	lookup := corestep.NewStaticOwnerLookup(taskID)
	partition := corestep.NewPartition(0)
	ids := []int64{1, 2, 3, 4, 5}
	for _, id := range ids {
		v := corestep.NewVertex(corestep.Int64VertexID(id), int64(1<<62))
		partition.AddVertex(v)
		lookup.Assign(corestep.Int64VertexID(id), corestep.PartitionOwner{PartitionID: 0, WorkerID: localWorker, TaskID: taskID})
	}
	chain := [][2]int64{{1, 2}, {2, 3}, {3, 4}, {4, 5}}
	for _, e := range chain {
		src := partition.Vertex(corestep.Int64VertexID(e[0]))
		src.AddEdge(corestep.Int64VertexID(e[1]), nil)
	}
	partition.Vertex(corestep.Int64VertexID(1)).SetValue(int64(0))

	typeStore := corestep.NewVertexTypeStore()
	typeStore.Populate([]*corestep.Partition{partition}, lookup)

	config := corestep.DefaultAsyncConfig()
	config.IsAsync = true
	config.Serialisability = corestep.SerialToken
	config.MaxSupersteps = maxSupersteps
	if err := config.Validate(); err != nil {
		return err
	}

	ring := token.NewRing(ringOf(numWorkers))
	globalToken := token.NewGlobalToken(ring, localWorker)

	sd := serverdata.New(config)
	localTransport := transport.NewLocalTransport()
	handler := &workerHandler{serverData: sd, token: globalToken}
	localTransport.Register(localWorker, handler)

	sender := &workerMessageSender{transport: localTransport}

	var quiescenceMu sync.Mutex
	quiescent := func() bool {
		quiescenceMu.Lock()
		defer quiescenceMu.Unlock()
		return true
	}
	tokenSend := func(dest corestep.WorkerID, generation uint64) error {
		return localTransport.SendGlobalToken(context.Background(), dest, generation)
	}

	exec := executor.New(executor.Executor{
		Config:        config,
		Compute:       shortestPathCompute,
		Lookup:        lookup,
		TypeStore:     typeStore,
		NumThreads:    2,
		LocalWorkerID: localWorker,
		GlobalToken:   globalToken,
	})
	driver := executor.NewDriver(exec, []*corestep.Partition{partition}, executor.DriverCallbacks{
		PostStep: func(ctx context.Context, stats executor.PartitionStats) error {
			// Barrier: don't rotate ServerData until every message
			// flushed this super-step has actually been delivered.
			if err := localTransport.WaitAllRequests(ctx); err != nil {
				return err
			}
			logger.WithField("vertices_computed", stats.VerticesComputed).Debug("completed super-step")
			return nil
		},
	})
	driver.ServerData = sd

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	drv := &driverService{
		driver:     driver,
		serverData: sd,
		sender:     sender,
		globalTok:  globalToken,
		runID:      runID,
		stop:       cancel,
	}

	wd, err := watchdog.NewService(watchdog.Config{
		Name:      "global",
		Token:     globalToken,
		Quiescent: quiescent,
		Send:      tokenSend,
		Interval:  500 * time.Millisecond,
		Logger:    logger.WithField("component", "watchdog"),
	})
	if err != nil {
		return err
	}

	debugSvc, err := debugserver.NewService(debugserver.Config{
		ListenAddr: debugAddr,
		Snapshot:   drv.snapshot,
		Logger:     logger.WithField("component", "debugserver"),
	})
	if err != nil {
		return err
	}

	group := runtime.Group{drv, wd, debugSvc}
	return group.Run(ctx)
}

func ringOf(numWorkers int) []corestep.WorkerID {
	order := make([]corestep.WorkerID, numWorkers)
	for i := range order {
		order[i] = corestep.WorkerID(i)
	}
	return order
}

// shortestPathCompute relaxes each vertex's current distance estimate
// against every incoming message and forwards an improved estimate to
// every out-neighbour, the classic vertex-centric SSSP formulation.
func shortestPathCompute(cc *executor.ComputeContext) error {
	best, _ := cc.Vertex.Value().(int64)
	isSource := best == 0
	improved := isSource
	for _, msg := range cc.Messages {
		if candidate := decodeDistance(msg); candidate < best {
			best = candidate
			improved = true
		}
	}
	if !improved {
		cc.Vertex.VoteToHalt()
		return nil
	}
	cc.Vertex.SetValue(best)
	if err := cc.SendMessageToAllEdges(encodeDistance(best + 1)); err != nil {
		return err
	}
	cc.Vertex.VoteToHalt()
	return nil
}

func encodeDistance(d int64) []byte {
	return []byte(fmt.Sprintf("%d", d))
}

func decodeDistance(b []byte) int64 {
	var d int64
	_, _ = fmt.Sscanf(string(b), "%d", &d)
	return d
}

// workerMessageSender adapts a transport.Transport into
// cache.WorkerMessageSender for the single-worker demo.
type workerMessageSender struct {
	transport *transport.LocalTransport
}

func (s *workerMessageSender) SendWorkerMessages(ctx context.Context, dest corestep.WorkerID, batches []cache.PartitionBatch) error {
	return s.transport.SendWorkerMessages(ctx, dest, batches)
}

// workerHandler implements transport.Handler for this demo's single
// worker, delivering inbound worker-message batches into whichever
// store ServerData currently designates as the incoming generation, and
// recording inbound token arrivals.
type workerHandler struct {
	serverData *serverdata.ServerData
	token      *token.GlobalToken
}

func (h *workerHandler) HandleWorkerMessages(_ context.Context, batches []cache.PartitionBatch) error {
	incoming := h.serverData.IncomingStore()
	for _, b := range batches {
		incoming.AddPartitionMessages(b.PartitionID, b.Entries)
	}
	return nil
}

func (h *workerHandler) HandleTokenRequest(context.Context) error { return nil }
func (h *workerHandler) HandleFork(context.Context) error         { return nil }

func (h *workerHandler) HandleGlobalToken(_ context.Context, generation uint64) error {
	h.token.Receive(generation)
	return nil
}

func (h *workerHandler) HandlePartitionToken(_ context.Context, _ corestep.PartitionID, generation uint64) error {
	h.token.Receive(generation)
	return nil
}

// driverService adapts executor.Driver into runtime.Service, stopping
// the whole process group once the run completes.
type driverService struct {
	driver     *executor.Driver
	serverData *serverdata.ServerData
	sender     cache.WorkerMessageSender
	globalTok  *token.GlobalToken
	runID      uuid.UUID

	mu    sync.Mutex
	stats executor.PartitionStats
	stop  context.CancelFunc
}

func (d *driverService) Name() string { return "driver" }

func (d *driverService) Run(ctx context.Context) error {
	defer d.stop()
	// store and local are overridden per super-step from
	// d.driver.ServerData, and sourceStore is unused without
	// NeedAllMsgs; only sender is actually consulted here.
	stats, err := d.driver.Run(ctx, d.serverData.CurrentStore(), nil, d.sender, nil)
	d.mu.Lock()
	d.stats = stats
	d.mu.Unlock()
	return err
}

func (d *driverService) snapshot() debugserver.Snapshot {
	d.mu.Lock()
	stats := d.stats
	d.mu.Unlock()
	return debugserver.Snapshot{
		RunID:            d.runID.String(),
		LogicalSuperstep: d.driver.Exec.LogicalSuperstep(),
		VerticesComputed: stats.VerticesComputed,
		Halted:           stats.Halted,
		MessagesSent:     stats.MessagesSent,
		MessageBytesSent: stats.MessageBytesSent,
		HasGlobalToken:   d.globalTok.HasToken(),
	}
}
