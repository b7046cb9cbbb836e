// Package health tracks the health of the components behind a served
// namespace and reports it over HTTP.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/pkg/errors"
)

// State is the health of a component.
type State int

const (
	// StateHealthy means the component answers normally.
	StateHealthy State = iota

	// StateDegraded means recent checks failed but the component may recover.
	StateDegraded

	// StateUnavailable means the component has failed long enough that
	// reads are expected to fail.
	StateUnavailable
)

// String returns the string representation of a health state
func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// CheckFunc probes one component.
type CheckFunc func(ctx context.Context) error

// ComponentHealth is a snapshot of one component's health.
type ComponentHealth struct {
	Name              string    `json:"name"`
	State             State     `json:"state"`
	LastStateChange   time.Time `json:"last_state_change"`
	LastCheck         time.Time `json:"last_check"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastError         string    `json:"last_error,omitempty"`
}

// Config configures a Tracker.
type Config struct {
	// ErrorThreshold consecutive failures mark a component degraded.
	ErrorThreshold int `yaml:"error_threshold"`

	// UnavailableThreshold consecutive failures mark it unavailable.
	UnavailableThreshold int `yaml:"unavailable_threshold"`

	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a default tracker configuration
func DefaultConfig() Config {
	return Config{
		ErrorThreshold:       1,
		UnavailableThreshold: 3,
		Interval:             30 * time.Second,
		Timeout:              10 * time.Second,
	}
}

type component struct {
	health ComponentHealth
	check  CheckFunc
}

// Tracker runs health checks and keeps the resulting state per component.
type Tracker struct {
	mu         sync.RWMutex
	config     Config
	components map[string]*component
	logger     *zap.Logger
	now        func() time.Time
}

// NewTracker creates a new health tracker
func NewTracker(config Config) *Tracker {
	def := DefaultConfig()
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = def.ErrorThreshold
	}
	if config.UnavailableThreshold <= 0 {
		config.UnavailableThreshold = def.UnavailableThreshold
	}
	if config.UnavailableThreshold < config.ErrorThreshold {
		config.UnavailableThreshold = config.ErrorThreshold
	}
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &Tracker{
		config:     config,
		components: make(map[string]*component),
		logger:     logging.Named("health"),
		now:        time.Now,
	}
}

// Register adds a component. check may be nil for components whose health
// is only fed through RecordSuccess and RecordError.
func (t *Tracker) Register(name string, check CheckFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.components[name]; exists {
		return
	}
	now := t.now()
	t.components[name] = &component{
		health: ComponentHealth{Name: name, State: StateHealthy, LastStateChange: now, LastCheck: now},
		check:  check,
	}
}

// RecordSuccess marks a component healthy again.
func (t *Tracker) RecordSuccess(name string) {
	t.record(name, nil)
}

// RecordError counts a failure against a component.
func (t *Tracker) RecordError(name string, err error) {
	if err == nil {
		err = errors.NewError(errors.ErrCodeInternalError, "health check failed")
	}
	t.record(name, err)
}

func (t *Tracker) record(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, exists := t.components[name]
	if !exists {
		return
	}
	h := &c.health
	h.LastCheck = t.now()

	state := StateHealthy
	if err == nil {
		h.ConsecutiveErrors = 0
		h.LastError = ""
	} else {
		h.ConsecutiveErrors++
		h.LastError = err.Error()
		switch {
		case h.ConsecutiveErrors >= t.config.UnavailableThreshold:
			state = StateUnavailable
		case h.ConsecutiveErrors >= t.config.ErrorThreshold:
			state = StateDegraded
		default:
			state = h.State
		}
	}

	if state != h.State {
		t.logger.Info("component health changed",
			zap.String("component", name),
			zap.String("from", h.State.String()),
			zap.String("to", state.String()),
			zap.Error(err))
		h.State = state
		h.LastStateChange = h.LastCheck
	}
}

// State returns the state of a component. Unknown components are
// unavailable.
func (t *Tracker) State(name string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if c, exists := t.components[name]; exists {
		return c.health.State
	}
	return StateUnavailable
}

// Components returns a snapshot of every component, sorted by name.
func (t *Tracker) Components() []ComponentHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]ComponentHealth, 0, len(t.components))
	for _, c := range t.components {
		result = append(result, c.health)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Overall returns the worst state across all components.
func (t *Tracker) Overall() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	overall := StateHealthy
	for _, c := range t.components {
		if c.health.State > overall {
			overall = c.health.State
		}
	}
	return overall
}

// CheckNow runs every registered check once.
func (t *Tracker) CheckNow(ctx context.Context) {
	t.mu.RLock()
	checks := make(map[string]CheckFunc, len(t.components))
	for name, c := range t.components {
		if c.check != nil {
			checks[name] = c.check
		}
	}
	t.mu.RUnlock()

	for name, check := range checks {
		cctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
		err := check(cctx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			t.RecordError(name, err)
		} else {
			t.RecordSuccess(name)
		}
	}
}

// Run checks all components every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.CheckNow(ctx)
		}
	}
}

type report struct {
	Status     State             `json:"status"`
	Components []ComponentHealth `json:"components"`
}

// Handler serves the tracker state as JSON. It answers 503 when any
// component is unavailable.
func (t *Tracker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rep := report{Status: t.Overall(), Components: t.Components()}
		w.Header().Set("Content-Type", "application/json")
		if rep.Status == StateUnavailable {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(rep)
	})
}
