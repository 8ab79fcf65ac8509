package recorder

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/rtp-recorder/internal/archive"
	"github.com/tphakala/rtp-recorder/internal/events"
	"github.com/tphakala/rtp-recorder/internal/feed"
)

type fakeProcess struct {
	pid             int
	exitCode        int
	ignoreInterrupt bool

	signals atomic.Int32
	kills   atomic.Int32

	once   sync.Once
	done   chan struct{}
	status ExitStatus
}

func newFakeProcess(pid, exitCode int, ignoreInterrupt bool) *fakeProcess {
	return &fakeProcess{pid: pid, exitCode: exitCode, ignoreInterrupt: ignoreInterrupt, done: make(chan struct{})}
}

func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.status = ExitStatus{Code: code}
		close(p.done)
	})
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Signal(os.Signal) error {
	p.signals.Add(1)
	if !p.ignoreInterrupt {
		p.exit(p.exitCode)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.kills.Add(1)
	p.exit(-1)
	return nil
}

func (p *fakeProcess) WaitExit(ctx context.Context) (ExitStatus, error) {
	select {
	case <-p.done:
		return p.status, nil
	case <-ctx.Done():
		return ExitStatus{}, ctx.Err()
	}
}

// fakeSpawner creates the output file the way ffmpeg would.
type fakeSpawner struct {
	mu              sync.Mutex
	specs           []CommandSpec
	procs           []*fakeProcess
	err             error
	exitCode        int
	ignoreInterrupt bool
	delay           time.Duration
}

func (s *fakeSpawner) Spawn(spec CommandSpec) (Process, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.specs = append(s.specs, spec)
	if s.err != nil {
		return nil, s.err
	}
	out := spec.Args[len(spec.Args)-1]
	if err := os.WriteFile(out, []byte("mp4 data"), 0o600); err != nil {
		return nil, err
	}
	p := newFakeProcess(1000+len(s.procs), s.exitCode, s.ignoreInterrupt)
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.specs)
}

func (s *fakeSpawner) proc(i int) *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[i]
}

type fakeUploader struct {
	mu        sync.Mutex
	artifacts []archive.Artifact
	err       error
}

func (u *fakeUploader) Upload(_ context.Context, a archive.Artifact) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.artifacts = append(u.artifacts, a)
	if u.err != nil {
		return "", u.err
	}
	return archive.ObjectKey("recordings", a), nil
}

func (u *fakeUploader) uploads() []archive.Artifact {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]archive.Artifact(nil), u.artifacts...)
}

type fakeStates struct {
	mu          sync.Mutex
	transitions map[string][]feed.State
}

func (f *fakeStates) Transition(mid string, to feed.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transitions == nil {
		f.transitions = make(map[string][]feed.State)
	}
	f.transitions[mid] = append(f.transitions[mid], to)
	return nil
}

func (f *fakeStates) of(mid string) []feed.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feed.State(nil), f.transitions[mid]...)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []events.LifecycleEvent
}

func (f *fakeEvents) TryPublish(e events.LifecycleEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return true
}

func (f *fakeEvents) types() []events.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.Type, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}
