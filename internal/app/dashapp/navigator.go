package dashapp

import (
	"sync"

	"go.uber.org/zap"

	"github.com/akulichev/memberdash/internal/services/routing"
)

const dashboardPath = "/dashboard"

// routeRecorder tracks where the session lifecycle last sent the user. The
// dashboard client reads the redirect target out of guard decisions; this
// keeps a server-side view of the same transitions for logging.
type routeRecorder struct {
	log *zap.Logger

	mu      sync.Mutex
	current string
}

func newRouteRecorder(log *zap.Logger) *routeRecorder {
	return &routeRecorder{log: log, current: routing.LoginPath}
}

func (r *routeRecorder) ToLogin() {
	r.set(routing.LoginPath)
}

func (r *routeRecorder) ToDashboard() {
	r.set(dashboardPath)
}

func (r *routeRecorder) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *routeRecorder) set(path string) {
	r.mu.Lock()
	changed := r.current != path
	r.current = path
	r.mu.Unlock()

	if changed && r.log != nil {
		r.log.Info("route_transition", zap.String("path", path))
	}
}
