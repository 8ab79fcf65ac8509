// Package detector discovers the sender of each RTP feed by listening for the
// first UDP datagram on the feed's port.
package detector

import (
	"context"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/feed"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/observability/metrics"
)

// Outcome is how a detection task ended.
type Outcome string

const (
	OutcomeDetected     Outcome = "detected"
	OutcomeTimedOut     Outcome = "timed-out"
	OutcomeBindConflict Outcome = "bind-conflict"
	OutcomeBindError    Outcome = "bind-error"
	OutcomeReadError    Outcome = "read-error"
	OutcomeCanceled     Outcome = "canceled"
)

const (
	// DefaultTimeout is the listening window per feed.
	DefaultTimeout = 10 * time.Second
	// DefaultBindAddress listens on all interfaces.
	DefaultBindAddress = "0.0.0.0"

	readBufferSize = 2048
)

// Result is the terminal state of one detection task.
type Result struct {
	MID     string
	Port    int
	Outcome Outcome
	Source  feed.Source // valid only for OutcomeDetected
	Elapsed time.Duration
	Err     error
}

// Detected reports whether a source was found.
func (r Result) Detected() bool {
	return r.Outcome == OutcomeDetected
}

// ListenFunc opens a packet listener.
type ListenFunc func(ctx context.Context, network, address string) (net.PacketConn, error)

// Config controls the detectors.
type Config struct {
	BindAddress string
	Timeout     time.Duration
	Listen      ListenFunc // nil uses net.ListenConfig
	// MaxConcurrent caps how many detectors DetectAll runs at once.
	// Zero or negative runs every feed's window in parallel.
	MaxConcurrent int
}

// Detector runs one-shot source detection for feeds.
type Detector struct {
	cfg     Config
	logger  logger.Logger
	metrics *metrics.DetectorMetrics
}

// New returns a Detector. Zero config values take the defaults.
func New(cfg Config, log logger.Logger, m *metrics.DetectorMetrics) *Detector {
	if cfg.BindAddress == "" {
		cfg.BindAddress = DefaultBindAddress
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Listen == nil {
		var lc net.ListenConfig
		cfg.Listen = lc.ListenPacket
	}
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Detector{cfg: cfg, logger: log, metrics: m}
}

// Detect binds the feed's port and waits for the first datagram, the timeout,
// or ctx cancellation, whichever comes first. The listener is closed on every path.
func (d *Detector) Detect(ctx context.Context, def feed.Definition) Result {
	res := Result{MID: def.MID, Port: def.Port}
	start := time.Now()
	log := d.logger.With(logger.String("mid", def.MID), logger.Int("port", def.Port))

	addr := net.JoinHostPort(d.cfg.BindAddress, strconv.Itoa(def.Port))
	conn, err := d.cfg.Listen(ctx, "udp", addr)
	if err != nil {
		res.Err = err
		if isAddrInUse(err) {
			res.Outcome = OutcomeBindConflict
			log.Warn("port already bound, detection skipped", logger.Error(err))
		} else {
			res.Outcome = OutcomeBindError
			res.Err = errors.New(err).
				Component("detector").
				Category(errors.CategoryNetwork).
				Context("operation", "bind").
				Context("mid", def.MID).
				Context("address", addr).
				Build()
			log.Error("failed to bind detection listener", logger.Error(err))
		}
		d.metrics.RecordOutcome(string(res.Outcome))
		return res
	}

	l := newListener(conn, d.metrics)
	defer l.Close()

	// cancellation unblocks the read by closing the socket
	stopAfter := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stopAfter()

	if err := conn.SetReadDeadline(start.Add(d.cfg.Timeout)); err != nil {
		res.Outcome = OutcomeReadError
		res.Err = err
		d.metrics.RecordOutcome(string(res.Outcome))
		return res
	}

	buf := make([]byte, readBufferSize)
	_, from, err := conn.ReadFrom(buf)
	_ = l.Close()
	res.Elapsed = time.Since(start)

	switch {
	case err == nil:
		res.Outcome = OutcomeDetected
		res.Source = sourceOf(from)
		d.metrics.ObserveLatency(res.Elapsed)
		log.Info("rtp source detected",
			logger.String("camera_ip", res.Source.IP),
			logger.Int("sender_port", res.Source.Port),
			logger.Duration("elapsed", res.Elapsed))
	case ctx.Err() != nil:
		res.Outcome = OutcomeCanceled
		res.Err = ctx.Err()
		log.Debug("detection canceled")
	case isTimeout(err):
		res.Outcome = OutcomeTimedOut
		log.Debug("no rtp traffic within timeout", logger.Duration("timeout", d.cfg.Timeout))
	default:
		res.Outcome = OutcomeReadError
		res.Err = err
		log.Warn("detection read failed", logger.Error(err))
	}

	d.metrics.RecordOutcome(string(res.Outcome))
	return res
}

// Summary counts results per outcome.
type Summary map[Outcome]int

// Total returns the number of finished tasks.
func (s Summary) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

func sourceOf(addr net.Addr) feed.Source {
	switch a := addr.(type) {
	case *net.UDPAddr:
		ip := a.IP
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		return feed.Source{IP: ip.String(), Port: a.Port}
	default:
		host, portStr, err := net.SplitHostPort(addr.String())
		if err != nil {
			return feed.Source{IP: addr.String()}
		}
		port, _ := strconv.Atoi(portStr)
		return feed.Source{IP: host, Port: port}
	}
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// listener closes its socket at most once.
type listener struct {
	conn     net.PacketConn
	once     sync.Once
	closeErr error
	metrics  *metrics.DetectorMetrics
}

func newListener(conn net.PacketConn, m *metrics.DetectorMetrics) *listener {
	m.ListenerOpened()
	return &listener{conn: conn, metrics: m}
}

func (l *listener) Close() error {
	l.once.Do(func() {
		l.closeErr = l.conn.Close()
		l.metrics.ListenerClosed()
	})
	return l.closeErr
}
