package observability

import (
	"context"
	"os"
	"time"
)

// HealthStatus is the state of a check or of the whole service.
type HealthStatus string

const (
	HealthStatusUp       HealthStatus = "up"
	HealthStatusDown     HealthStatus = "down"
	HealthStatusDegraded HealthStatus = "degraded"
)

// HealthCheck checks one dependency. A failing critical check takes the service
// down, any other failing check degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// Health is the result of one check.
type Health struct {
	Name    string        `json:"name"`
	Status  HealthStatus  `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
}

// ServiceHealth is the result of all checks.
type ServiceHealth struct {
	Service    string       `json:"service"`
	Status     HealthStatus `json:"status"`
	Version    string       `json:"version,omitempty"`
	Components []Health     `json:"components,omitempty"`
}

// CheckHealth runs the checks in order.
func CheckHealth(ctx context.Context, service, version string, checks ...HealthCheck) *ServiceHealth {
	sh := &ServiceHealth{Service: service, Status: HealthStatusUp, Version: version}
	for _, p := range checks {
		start := time.Now()
		err := p.Check(ctx)
		h := Health{Name: p.Name, Status: HealthStatusUp, Latency: time.Since(start)}
		switch {
		case err == nil:
		case p.Critical:
			h.Status, h.Message = HealthStatusDown, err.Error()
			sh.Status = HealthStatusDown
		default:
			h.Status, h.Message = HealthStatusDegraded, err.Error()
			if sh.Status != HealthStatusDown {
				sh.Status = HealthStatusDegraded
			}
		}
		sh.Components = append(sh.Components, h)
	}
	return sh
}

// DirectoryCheck checks that files can be created in dir, e.g. the
// scratch root where temporaries are allocated.
func DirectoryCheck(name, dir string) HealthCheck {
	return HealthCheck{Name: name, Check: func(context.Context) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.CreateTemp(dir, ".check-*")
		if err != nil {
			return err
		}
		_ = f.Close()
		return os.Remove(f.Name())
	}}
}
