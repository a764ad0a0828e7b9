// Package debugserver implements the ambient introspection HTTP
// endpoint: a small gorilla/mux-routed server exposing a JSON snapshot
// of the worker's current PartitionStats, cache counters, and token
// holder status, so an operator can curl a running worker instead of
// scraping logs.
package debugserver

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const statsEndpoint = "/debug/stats"

// Snapshot is the JSON body served at /debug/stats.
type Snapshot struct {
	RunID            string `json:"run_id"`
	LogicalSuperstep int    `json:"logical_superstep"`
	VerticesComputed int64  `json:"vertices_computed"`
	Halted           int64  `json:"halted"`
	MessagesSent     int64  `json:"messages_sent"`
	MessageBytesSent int64  `json:"message_bytes_sent"`
	HasGlobalToken   bool   `json:"has_global_token"`
}

// SnapshotFunc produces the current Snapshot on demand.
type SnapshotFunc func() Snapshot

// Config configures a debug Service.
type Config struct {
	// ListenAddr is the address to serve on, e.g. ":6060".
	ListenAddr string
	// Snapshot produces the current stats snapshot.
	Snapshot SnapshotFunc
	// Logger defaults to an output-discarding logger.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.ListenAddr == "" {
		err = multierror.Append(err, xerrors.Errorf("debugserver: listen address has not been specified"))
	}
	if cfg.Snapshot == nil {
		err = multierror.Append(err, xerrors.Errorf("debugserver: snapshot function has not been provided"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Service implements runtime.Service, serving the /debug/stats endpoint
// until its context is cancelled.
type Service struct {
	cfg    Config
	router *mux.Router
}

// NewService validates cfg and returns a ready debug Service.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("debugserver: config validation failed: %w", err)
	}
	svc := &Service{cfg: cfg, router: mux.NewRouter()}
	svc.router.HandleFunc(statsEndpoint, svc.renderStats).Methods("GET")
	return svc, nil
}

// Name implements runtime.Service.
func (svc *Service) Name() string { return "debug-server" }

// Run implements runtime.Service.
func (svc *Service) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", svc.cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	srv := &http.Server{Addr: svc.cfg.ListenAddr, Handler: svc.router}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	svc.cfg.Logger.WithField("addr", svc.cfg.ListenAddr).Info("starting debug server")
	if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (svc *Service) renderStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(svc.cfg.Snapshot()); err != nil {
		svc.cfg.Logger.WithField("err", err).Error("failed to encode debug stats")
		w.WriteHeader(http.StatusInternalServerError)
	}
}
