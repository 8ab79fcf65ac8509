package recorder

import (
	"bytes"
	"strings"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"
	"golang.org/x/time/rate"

	"github.com/tphakala/rtp-recorder/internal/logger"
)

const (
	stderrTailSize   = 4096
	stderrLineLimit  = 512
	stderrLogBurst   = 10
	stderrLogEvery   = time.Second
	stderrPartialMax = 8192
)

// stderrLog receives ffmpeg stderr. Complete lines are logged at debug level
// under a rate limit and the last bytes are kept for failure reports.
type stderrLog struct {
	mu      sync.Mutex
	tail    *ringbuffer.RingBuffer
	partial []byte
	limiter *rate.Limiter
	dropped int
	logger  logger.Logger
}

func newStderrLog(log logger.Logger) *stderrLog {
	return &stderrLog{
		tail:    ringbuffer.New(stderrTailSize),
		limiter: rate.NewLimiter(rate.Every(stderrLogEvery), stderrLogBurst),
		logger:  log,
	}
}

// Write never fails so the subprocess is never blocked on its stderr.
func (s *stderrLog) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keepTail(p)

	s.partial = append(s.partial, p...)
	for {
		idx := bytes.IndexByte(s.partial, '\n')
		if idx < 0 {
			break
		}
		s.logLine(string(s.partial[:idx]))
		s.partial = s.partial[idx+1:]
	}
	if len(s.partial) > stderrPartialMax {
		s.logLine(string(s.partial))
		s.partial = s.partial[:0]
	}
	return len(p), nil
}

func (s *stderrLog) keepTail(p []byte) {
	if len(p) >= stderrTailSize {
		s.tail.Reset()
		_, _ = s.tail.Write(p[len(p)-stderrTailSize:])
		return
	}
	if free := s.tail.Free(); free < len(p) {
		discard := make([]byte, len(p)-free)
		_, _ = s.tail.Read(discard)
	}
	_, _ = s.tail.Write(p)
}

func (s *stderrLog) logLine(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	if !s.limiter.Allow() {
		s.dropped++
		return
	}
	if len(line) > stderrLineLimit {
		line = line[:stderrLineLimit]
	}
	if s.dropped > 0 {
		s.logger.Debug("ffmpeg", logger.String("line", line), logger.Int("suppressed", s.dropped))
		s.dropped = 0
		return
	}
	s.logger.Debug("ffmpeg", logger.String("line", line))
}

// Tail returns the most recent stderr output.
func (s *stderrLog) Tail() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.tail.Length()
	if n == 0 {
		return ""
	}
	buf := make([]byte, n)
	_, _ = s.tail.Read(buf)
	_, _ = s.tail.Write(buf)
	return strings.TrimSpace(string(buf))
}
