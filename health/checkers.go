package health

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/glimte/gdp-bridge/bridge"
	"github.com/glimte/gdp-bridge/remote"
)

// LinkChecker reports the control channel state
type LinkChecker struct {
	link    remote.Link
	address string
}

// NewLinkChecker creates a control channel checker
func NewLinkChecker(link remote.Link, address string) *LinkChecker {
	return &LinkChecker{link: link, address: address}
}

func (c *LinkChecker) Name() string {
	return "remote_link"
}

func (c *LinkChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   map[string]interface{}{"address": c.address},
	}

	if c.link.IsConnected() {
		result.Status = StatusHealthy
		result.Message = "control channel connected"
	} else {
		result.Status = StatusUnhealthy
		result.Message = "control channel not connected"
		if err := c.link.Err(); err != nil {
			result.Error = err.Error()
		}
	}

	result.Duration = time.Since(start)
	return result
}

// RouteLister returns route snapshots
type RouteLister interface {
	Routes() []bridge.RouteStatus
}

// RoutesChecker reports active and idle routes. Idle remote-to-local
// routes are normal, so it is always healthy.
type RoutesChecker struct {
	routes RouteLister
}

// NewRoutesChecker creates a routes checker
func NewRoutesChecker(routes RouteLister) *RoutesChecker {
	return &RoutesChecker{routes: routes}
}

func (c *RoutesChecker) Name() string {
	return "routes"
}

func (c *RoutesChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	routes := c.routes.Routes()

	active := 0
	statuses := make(map[string]interface{}, len(routes))
	for _, r := range routes {
		if r.Active {
			active++
			statuses[r.Name] = "active"
		} else {
			statuses[r.Name] = "idle"
		}
	}

	return CheckResult{
		Name:      c.Name(),
		Status:    StatusHealthy,
		Message:   fmt.Sprintf("%d of %d routes active", active, len(routes)),
		Details:   statuses,
		Timestamp: start,
		Duration:  time.Since(start),
	}
}

// GoroutineChecker degrades when the process runs too many goroutines
type GoroutineChecker struct {
	warningThreshold  int
	criticalThreshold int
}

// NewGoroutineChecker creates a goroutine count checker
func NewGoroutineChecker(warningThreshold, criticalThreshold int) *GoroutineChecker {
	return &GoroutineChecker{
		warningThreshold:  warningThreshold,
		criticalThreshold: criticalThreshold,
	}
}

func (c *GoroutineChecker) Name() string {
	return "goroutines"
}

func (c *GoroutineChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	goroutines := runtime.NumGoroutine()

	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details: map[string]interface{}{
			"goroutines":     goroutines,
			"memory_used_mb": float64(m.Sys) / 1024 / 1024,
			"gc_runs":        m.NumGC,
		},
	}

	switch {
	case goroutines > c.criticalThreshold:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("too many goroutines: %d", goroutines)
	case goroutines > c.warningThreshold:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("high goroutine count: %d", goroutines)
	default:
		result.Status = StatusHealthy
		result.Message = "goroutine count is normal"
	}

	result.Duration = time.Since(start)
	return result
}

// ComponentChecker allows checking custom components
type ComponentChecker struct {
	name    string
	checker func(ctx context.Context) (Status, string, map[string]interface{}, error)
}

// NewComponentChecker creates a checker for custom components
func NewComponentChecker(name string, checker func(ctx context.Context) (Status, string, map[string]interface{}, error)) *ComponentChecker {
	return &ComponentChecker{
		name:    name,
		checker: checker,
	}
}

func (c *ComponentChecker) Name() string {
	return c.name
}

func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	status, message, details, err := c.checker(ctx)

	result.Status = status
	result.Message = message
	if details != nil {
		result.Details = details
	}
	if err != nil {
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)

	return result
}
