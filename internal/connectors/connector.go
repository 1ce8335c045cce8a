package connectors

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trailhound/trailhound/internal/models"
)

// Connector executes one query against one external source. Adapters
// encode their native query dialect and parse the native envelope into
// RawResult values. Adapter failures surface as per-query errors, never
// as pipeline crashes.
type Connector interface {
	// Name is the stable source identifier
	Name() string
	// Type classifies the source (search-engine, code-repository, ...)
	Type() string
	// SupportedKinds lists the query kinds this source can answer
	SupportedKinds() []models.QueryKind
	// SupportedEntityTypes lists the entity types this source can discover
	SupportedEntityTypes() []models.EntityType
	// RateLimitPerHour is the declared hourly request budget
	RateLimitPerHour() int
	// BaseConfidence weights results from this source, 0-1
	BaseConfidence() float64
	// Search executes the query. It must honor ctx deadline and
	// cancellation: abort and return partial results or a timeout error,
	// never hang.
	Search(ctx context.Context, q models.Query) ([]models.RawResult, error)
	// ValidateCredentials checks configured credentials, true when the
	// source needs none.
	ValidateCredentials(ctx context.Context) (bool, error)
}

// Status is a connector's operational state
type Status string

const (
	StatusActive      Status = "active"
	StatusInactive    Status = "inactive"
	StatusRateLimited Status = "rate_limited"
	StatusError       Status = "error"
)

// StatusInfo is the reportable state of one registered connector
type StatusInfo struct {
	SourceName       string    `json:"source_name"`
	SourceType       string    `json:"source_type"`
	Status           Status    `json:"status"`
	RateLimitPerHour int       `json:"rate_limit_per_hour"`
	BaseConfidence   float64   `json:"base_confidence"`
	BackoffUntil     time.Time `json:"backoff_until,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
}

// Registry holds the process-wide connector set, keyed by source name.
// Constructed at startup and handed to the coordinator; never ambient
// state.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Connector
	status map[string]*StatusInfo
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Connector),
		status: make(map[string]*StatusInfo),
	}
}

// Register adds a connector. Last registration for a name wins.
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[c.Name()] = c
	r.status[c.Name()] = &StatusInfo{
		SourceName:       c.Name(),
		SourceType:       c.Type(),
		Status:           StatusActive,
		RateLimitPerHour: c.RateLimitPerHour(),
		BaseConfidence:   c.BaseConfidence(),
	}
}

// Get returns a connector by name
func (r *Registry) Get(name string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// Names returns all registered source names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForKind returns the connectors able to answer a query kind, sorted by
// descending base confidence then name for deterministic planning.
func (r *Registry) ForKind(kind models.QueryKind) []Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Connector
	for _, c := range r.byName {
		for _, k := range c.SupportedKinds() {
			if k == kind {
				out = append(out, c)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BaseConfidence() != out[j].BaseConfidence() {
			return out[i].BaseConfidence() > out[j].BaseConfidence()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// MarkStatus updates a connector's operational state
func (r *Registry) MarkStatus(name string, status Status, lastError string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.status[name]; ok {
		info.Status = status
		info.LastError = lastError
	}
}

// MarkBackoff records the backoff window on the status surface
func (r *Registry) MarkBackoff(name string, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.status[name]; ok {
		info.Status = StatusRateLimited
		info.BackoffUntil = until
	}
}

// StatusAll returns the status of every registered connector, sorted by
// name.
func (r *Registry) StatusAll() []StatusInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StatusInfo, 0, len(r.status))
	for _, info := range r.status {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceName < out[j].SourceName })
	return out
}
