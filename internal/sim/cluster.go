// Package sim is the managed resource: a mini cloud platform with services
// and alerts. Its mutating operations are only ever reached through the
// gateway after the enforcement point allows them; the read-only accessors
// are sensing operations and bypass enforcement.
package sim

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnknownAction is returned for actions the cluster cannot execute.
var ErrUnknownAction = errors.New("sim: unknown action")

// ErrNotFound is returned when the target service or alert does not exist.
var ErrNotFound = errors.New("sim: not found")

// Service is one managed microservice.
type Service struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"` // "running" or "stopped"
	Health      string     `json:"health"` // "healthy", "degraded" or "offline"
	Port        int        `json:"port"`
	Replicas    int        `json:"replicas"`
	Version     string     `json:"version"`
	StartedAt   time.Time  `json:"started_at"`
	RestartedAt *time.Time `json:"restarted_at,omitempty"`
}

// Alert is one system alert.
type Alert struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Severity       string    `json:"severity"`
	Message        string    `json:"message"`
	Status         string    `json:"status"` // "open" or "resolved"
	ResourceID     string    `json:"resource_id,omitempty"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	ResolutionNote string    `json:"resolution_note,omitempty"`
}

// Cluster holds the simulator state.
type Cluster struct {
	mu       sync.Mutex
	services map[string]*Service
	alerts   map[string]*Alert
	alertSeq int
	now      func() time.Time
}

// NewCluster seeds the sample platform: three running services, no alerts.
func NewCluster() *Cluster {
	c := &Cluster{
		services: make(map[string]*Service),
		alerts:   make(map[string]*Alert),
		now:      time.Now,
	}
	now := c.now()
	for _, s := range []*Service{
		{ID: "auth", Name: "Authentication Service", Port: 8001},
		{ID: "payments", Name: "Payments Service", Port: 8002},
		{ID: "db", Name: "Database Service", Port: 5432},
	} {
		s.Status = "running"
		s.Health = "healthy"
		s.Replicas = 1
		s.Version = "1.0.0"
		s.StartedAt = now
		c.services[s.ID] = s
	}
	return c
}

// Execute performs one mutating operation. It trusts its caller completely:
// authorization already happened at the enforcement point. An error here is
// a downstream execution failure, recorded but never a reason to revisit
// the governance decision.
func (c *Cluster) Execute(principalID, action string, params map[string]any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch action {
	case "infra.restart":
		return c.restart(params)
	case "infra.scale":
		return c.scale(params)
	case "infra.shutdown":
		return c.shutdown(params)
	case "infra.deploy":
		return c.deploy(params)
	case "alert.create":
		return c.createAlert(principalID, params)
	case "alert.resolve":
		return c.resolveAlert(params)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

func (c *Cluster) restart(params map[string]any) (any, error) {
	svc, err := c.service(params)
	if err != nil {
		return nil, err
	}
	now := c.now()
	svc.Status = "running"
	svc.Health = "healthy"
	svc.RestartedAt = &now
	out := *svc
	return &out, nil
}

func (c *Cluster) scale(params map[string]any) (any, error) {
	svc, err := c.service(params)
	if err != nil {
		return nil, err
	}
	replicas, ok := intParam(params, "replicas")
	if !ok || replicas < 0 {
		return nil, fmt.Errorf("sim: scale: invalid replicas")
	}
	svc.Replicas = replicas
	out := *svc
	return &out, nil
}

func (c *Cluster) shutdown(params map[string]any) (any, error) {
	svc, err := c.service(params)
	if err != nil {
		return nil, err
	}
	svc.Status = "stopped"
	svc.Health = "offline"
	out := *svc
	return &out, nil
}

func (c *Cluster) deploy(params map[string]any) (any, error) {
	id, _ := params["service_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("sim: deploy: missing service_id")
	}
	if _, exists := c.services[id]; exists {
		return nil, fmt.Errorf("sim: deploy: service %q already exists", id)
	}
	name, _ := params["name"].(string)
	port, _ := intParam(params, "port")
	version, _ := params["version"].(string)
	if version == "" {
		version = "1.0.0"
	}

	svc := &Service{
		ID:        id,
		Name:      name,
		Status:    "running",
		Health:    "healthy",
		Port:      port,
		Replicas:  1,
		Version:   version,
		StartedAt: c.now(),
	}
	c.services[id] = svc
	out := *svc
	return &out, nil
}

func (c *Cluster) createAlert(principalID string, params map[string]any) (any, error) {
	msg, _ := params["msg"].(string)
	if msg == "" {
		return nil, fmt.Errorf("sim: alert.create: missing msg")
	}
	typ, _ := params["type"].(string)
	severity, _ := params["severity"].(string)
	resourceID, _ := params["resource_id"].(string)

	c.alertSeq++
	alert := &Alert{
		ID:         fmt.Sprintf("alert-%d", c.alertSeq),
		Type:       typ,
		Severity:   severity,
		Message:    msg,
		Status:     "open",
		ResourceID: resourceID,
		CreatedBy:  principalID,
		CreatedAt:  c.now(),
	}
	c.alerts[alert.ID] = alert
	out := *alert
	return &out, nil
}

func (c *Cluster) resolveAlert(params map[string]any) (any, error) {
	id, _ := params["alert_id"].(string)
	alert, ok := c.alerts[id]
	if !ok {
		return nil, fmt.Errorf("%w: alert %q", ErrNotFound, id)
	}
	alert.Status = "resolved"
	if note, ok := params["resolution_note"].(string); ok {
		alert.ResolutionNote = note
	}
	out := *alert
	return &out, nil
}

func (c *Cluster) service(params map[string]any) (*Service, error) {
	id, _ := params["service_id"].(string)
	svc, ok := c.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: service %q", ErrNotFound, id)
	}
	return svc, nil
}

// Services returns all services ordered by ID. Sensing only.
func (c *Cluster) Services() []Service {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Service, 0, len(c.services))
	for _, s := range c.services {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Service returns one service by ID. Sensing only.
func (c *Cluster) Service(id string) (Service, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.services[id]
	if !ok {
		return Service{}, false
	}
	return *s, true
}

// Alerts returns all alerts ordered by ID. Sensing only.
func (c *Cluster) Alerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Alert, 0, len(c.alerts))
	for _, a := range c.alerts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// intParam reads a numeric parameter that may arrive as float64 (JSON) or
// int (in-process callers).
func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
