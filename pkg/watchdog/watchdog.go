// Package watchdog runs the token-rotation liveness check named in
// spec.md §4.6: under the token serialisability discipline, a held
// token that never becomes eligible for release stalls every boundary
// vertex behind it, so a background pass attempts release once per
// interval regardless of what triggered compute to settle.
package watchdog

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/vertexmesh/corestep/pkg/token"
)

// Releaser is the token contract the watchdog drives; both
// *token.GlobalToken and *token.PartitionToken satisfy it.
type Releaser interface {
	HasToken() bool
	Release(quiescent token.QuiescenceCheck, send token.Sender) (bool, error)
}

// Config configures a watchdog Service.
type Config struct {
	// Name identifies this watchdog instance for logging, since a
	// worker may run one per partition token in addition to its global
	// token.
	Name string
	// Token is the token this watchdog attempts to release each tick.
	Token Releaser
	// Quiescent reports whether the local worker is settled enough to
	// hand the token onward.
	Quiescent token.QuiescenceCheck
	// Send delivers a released token to its next holder.
	Send token.Sender
	// Interval is the time between release attempts.
	Interval time.Duration
	// Clock generates time-based events. Defaults to clock.WallClock.
	Clock clock.Clock
	// Logger defaults to an output-discarding logger.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Token == nil {
		err = multierror.Append(err, xerrors.Errorf("watchdog: token has not been provided"))
	}
	if cfg.Quiescent == nil {
		err = multierror.Append(err, xerrors.Errorf("watchdog: quiescence check has not been provided"))
	}
	if cfg.Send == nil {
		err = multierror.Append(err, xerrors.Errorf("watchdog: token sender has not been provided"))
	}
	if cfg.Interval <= 0 {
		err = multierror.Append(err, xerrors.Errorf("watchdog: interval must be positive"))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	if cfg.Name == "" {
		cfg.Name = "token"
	}
	return err
}

// Service implements runtime.Service, periodically attempting to release
// a held token once the local worker reaches quiescence.
type Service struct {
	cfg Config
}

// NewService validates cfg and returns a ready watchdog Service.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("watchdog service: config validation failed: %w", err)
	}
	return &Service{cfg: cfg}, nil
}

// Name implements runtime.Service.
func (s *Service) Name() string { return s.cfg.Name + "-watchdog" }

// Run implements runtime.Service.
func (s *Service) Run(ctx context.Context) error {
	s.cfg.Logger.WithField("interval", s.cfg.Interval.String()).Info("starting token watchdog")
	defer s.cfg.Logger.Info("stopped token watchdog")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.cfg.Clock.After(s.cfg.Interval):
			if !s.cfg.Token.HasToken() {
				continue
			}
			released, err := s.cfg.Token.Release(s.cfg.Quiescent, s.cfg.Send)
			if err != nil {
				return xerrors.Errorf("watchdog: releasing token failed: %w", err)
			}
			if released {
				s.cfg.Logger.Debug("released token to next ring member")
			}
		}
	}
}
