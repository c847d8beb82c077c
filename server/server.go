// Package server exposes the ledger over TCP. Each accepted connection gets
// one session goroutine that speaks the framed TLV protocol; all sessions
// share one ledger. Admission is bounded so a flood of connections degrades
// into queueing at accept rather than unbounded goroutine growth.
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ledgerd/ledgerd/core"
)

const defaultMaxSessions = 64

var (
	sessionCounter    = metrics.GetOrRegisterCounter("server/sessions", nil)
	activeGauge       = metrics.GetOrRegisterGauge("server/sessions/active", nil)
	acceptErrorsMeter = metrics.GetOrRegisterMeter("server/accept/errors", nil)
)

// Config collects the options of a Server. Zero values get defaults where a
// default makes sense.
type Config struct {
	// Addr is the TCP listen address, e.g. ":9092". Use "127.0.0.1:0" in
	// tests and read the bound address back with Addr.
	Addr string

	// MaxSessions bounds the number of concurrently served connections.
	// Zero means defaultMaxSessions.
	MaxSessions int64

	// Logger receives the server's structured log output. Nil means no
	// logging.
	Logger *zap.Logger
}

// Server accepts connections and runs protocol sessions against a ledger.
type Server struct {
	cfg    Config
	log    *zap.Logger
	ledger *core.Ledger

	lock     sync.Mutex
	running  bool
	listener net.Listener
	cancel   context.CancelFunc

	slots    *semaphore.Weighted
	sessions mapset.Set[*session]
	loopWG   sync.WaitGroup
}

// New creates an unstarted server around a ledger.
func New(ledger *core.Ledger, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	return &Server{
		cfg:      cfg,
		log:      logger,
		ledger:   ledger,
		slots:    semaphore.NewWeighted(cfg.MaxSessions),
		sessions: mapset.NewSet[*session](),
	}
}

// Start binds the listen address and launches the accept loop. It returns
// once the listener is live, so Addr is valid immediately after.
func (srv *Server) Start() error {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	if srv.running {
		return errors.New("server: already started")
	}

	listener, err := net.Listen("tcp", srv.cfg.Addr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv.listener = listener
	srv.cancel = cancel
	srv.running = true

	srv.log.Info("listening", zap.Stringer("addr", listener.Addr()),
		zap.Int64("maxSessions", srv.cfg.MaxSessions))

	srv.loopWG.Add(1)
	go srv.listenLoop(ctx)
	return nil
}

// Addr returns the bound listen address. Valid after Start.
func (srv *Server) Addr() net.Addr {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// SessionCount returns the number of sessions currently being served.
func (srv *Server) SessionCount() int {
	return srv.sessions.Cardinality()
}

// Stop closes the listener and every live session, then waits for all
// session goroutines to exit. Safe to call more than once.
func (srv *Server) Stop() {
	srv.lock.Lock()
	if !srv.running {
		srv.lock.Unlock()
		return
	}
	srv.running = false
	srv.cancel()
	srv.listener.Close()
	srv.lock.Unlock()

	for _, s := range srv.sessions.ToSlice() {
		s.close()
	}
	srv.loopWG.Wait()
	srv.log.Info("stopped")
}

// Wait blocks until the server has fully stopped.
func (srv *Server) Wait() {
	srv.loopWG.Wait()
}

// listenLoop accepts connections for the lifetime of the server. A session
// slot is acquired before accepting, so at most MaxSessions connections are
// in flight; further clients wait in the kernel backlog.
func (srv *Server) listenLoop(ctx context.Context) {
	defer srv.loopWG.Done()

	for {
		if err := srv.slots.Acquire(ctx, 1); err != nil {
			return
		}
		conn, err := srv.listener.Accept()
		if err != nil {
			srv.slots.Release(1)
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			acceptErrorsMeter.Mark(1)
			srv.log.Warn("accept failed, retrying", zap.Error(err))
			select {
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}

		s := newSession(conn, srv.ledger, srv.log.With(zap.Stringer("peer", conn.RemoteAddr())))
		srv.sessions.Add(s)
		sessionCounter.Inc(1)
		activeGauge.Update(int64(srv.sessions.Cardinality()))

		srv.loopWG.Add(1)
		go func() {
			defer srv.loopWG.Done()
			s.run()
			srv.sessions.Remove(s)
			activeGauge.Update(int64(srv.sessions.Cardinality()))
			srv.slots.Release(1)
		}()
	}
}
