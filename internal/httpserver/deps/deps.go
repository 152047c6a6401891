package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/concierge/internal/dashboard"
	"github.com/MrSnakeDoc/concierge/internal/logger"
	"github.com/MrSnakeDoc/concierge/internal/scheduler"
)

// Dashboards serves dashboards and flushes their cache.
type Dashboards interface {
	Dashboard(ctx context.Context, role dashboard.Role, caller dashboard.Caller) (dashboard.Result, error)
	ClearCache(ctx context.Context) error
}

// ProbeResults exposes the latest downstream probe round.
type ProbeResults interface {
	Snapshot() (map[string]scheduler.ProbeStatus, time.Time)
}

// Pinger checks a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time // for testing, defaults to time.Now
	AllowedCIDRS []string         // IPs allowed to access ops endpoints (healthz, readyz, infra, metrics)
	TrustProxy   bool             // true if running behind a trusted reverse proxy
	RoutePrefix  string           // dashboard routes are mounted at the root and under this prefix
	JWTSecret    []byte           // HS256 secret for bearer tokens
	CORSOrigins  []string         // allowed CORS origins, empty disables CORS
	Dashboards   Dashboards       // dashboard aggregator
	CacheBackend string           // "memory" | "redis"
	CachePinger  Pinger           // nil for the in-process cache
	Probes       ProbeResults     // nil when probing is disabled
	ProbeTrigger chan struct{}    // buffered(1) channel requesting an immediate probe round
}
