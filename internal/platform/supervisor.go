package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"trackgym/internal/logging"
)

// ErrListenerFailed is returned by Run once a listener has used up its
// restarts.
var ErrListenerFailed = errors.New("listener failed")

// RestartPolicy controls rebind backoff. Zero values take defaults;
// MaxRestarts 0 rebinds forever.
type RestartPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	MaxRestarts    int
}

func normalizeRestartPolicy(policy RestartPolicy) RestartPolicy {
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = 10 * time.Millisecond
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = 200 * time.Millisecond
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = 2
	}
	return policy
}

// Listener is a network service kept bound by a Supervisor.
type Listener struct {
	Name    string
	Network string
	Addr    string

	// Serve owns lis until it returns. A nil return while the context is
	// still live is a clean shutdown and is not restarted.
	Serve func(ctx context.Context, lis net.Listener) error

	// OnBound runs on the supervising goroutine after every successful bind.
	OnBound func(addr net.Addr, restarts int)
}

// ListenerStatus is a snapshot of one supervised listener.
type ListenerStatus struct {
	Name         string `json:"name"`
	Addr         string `json:"addr,omitempty"`
	Restarts     int    `json:"restarts"`
	BindFailures int    `json:"bind_failures"`
	LastError    string `json:"last_error,omitempty"`
	Failed       bool   `json:"failed"`
}

// Supervisor keeps listeners bound, rebinding each after a bind or serve
// failure with exponential backoff.
type Supervisor struct {
	policy RestartPolicy
	log    *zap.Logger

	mu     sync.Mutex
	status map[string]*ListenerStatus
	active map[string]bool
}

func NewSupervisor(policy RestartPolicy) *Supervisor {
	return &Supervisor{
		policy: normalizeRestartPolicy(policy),
		log:    logging.Named("supervisor"),
		status: make(map[string]*ListenerStatus),
		active: make(map[string]bool),
	}
}

// Run binds l and serves it until ctx is done. It returns nil on
// cancellation or clean shutdown, and an error wrapping ErrListenerFailed
// when MaxRestarts consecutive attempts have failed.
func (s *Supervisor) Run(ctx context.Context, l Listener) error {
	if l.Name == "" {
		return errors.New("listener name is required")
	}
	if l.Serve == nil {
		return errors.New("listener serve func is required")
	}
	if l.Network == "" {
		l.Network = "tcp"
	}

	s.mu.Lock()
	if s.active[l.Name] {
		s.mu.Unlock()
		return fmt.Errorf("listener already supervised: %s", l.Name)
	}
	s.active[l.Name] = true
	s.status[l.Name] = &ListenerStatus{Name: l.Name}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, l.Name)
		s.mu.Unlock()
	}()

	log := s.log.With(zap.String("listener", l.Name))
	backoff := s.policy.InitialBackoff
	for {
		err := s.serveOnce(ctx, l, log)
		if ctx.Err() != nil || err == nil {
			s.update(l.Name, func(st *ListenerStatus) { st.Addr = "" })
			return nil
		}

		var restarts int
		s.update(l.Name, func(st *ListenerStatus) {
			st.Addr = ""
			st.LastError = err.Error()
			restarts = st.Restarts
		})
		if s.policy.MaxRestarts > 0 && restarts >= s.policy.MaxRestarts {
			s.update(l.Name, func(st *ListenerStatus) { st.Failed = true })
			log.Error("listener failed permanently", zap.Int("restarts", restarts), zap.Error(err))
			return fmt.Errorf("%w: %s after %d restarts: %v", ErrListenerFailed, l.Name, restarts, err)
		}
		s.update(l.Name, func(st *ListenerStatus) { st.Restarts++ })
		log.Warn("rebinding listener", zap.Int("restart", restarts+1), zap.Duration("backoff", backoff), zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(time.Duration(float64(backoff)*s.policy.BackoffFactor), s.policy.MaxBackoff)
	}
}

func (s *Supervisor) serveOnce(ctx context.Context, l Listener, log *zap.Logger) error {
	lis, err := net.Listen(l.Network, l.Addr)
	if err != nil {
		s.update(l.Name, func(st *ListenerStatus) { st.BindFailures++ })
		return err
	}
	defer lis.Close()

	var restarts int
	s.update(l.Name, func(st *ListenerStatus) {
		st.Addr = lis.Addr().String()
		restarts = st.Restarts
	})
	log.Info("listener bound", zap.String("addr", lis.Addr().String()), zap.Int("restarts", restarts))
	if l.OnBound != nil {
		l.OnBound(lis.Addr(), restarts)
	}
	return l.Serve(ctx, lis)
}

func (s *Supervisor) update(name string, fn func(*ListenerStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.status[name]; ok {
		fn(st)
	}
}

// Status returns the latest snapshot for the named listener.
func (s *Supervisor) Status(name string) (ListenerStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[name]
	if !ok {
		return ListenerStatus{}, false
	}
	return *st, true
}

// Listeners reports every listener the supervisor has run, sorted by name.
func (s *Supervisor) Listeners() []ListenerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ListenerStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
