package httpapi

import (
	"database/sql"
	"net/http"
	"sort"
	"strings"
	"sync"

	"stationlog/internal/metrics"
)

// Router is a ServeMux that remembers its patterns so they can be listed at /routes.
type Router struct {
	*http.ServeMux
	mu       sync.Mutex
	patterns []string
}

func (r *Router) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	r.record(pattern)
	r.ServeMux.HandleFunc(pattern, handler)
}

func (r *Router) Handle(pattern string, handler http.Handler) {
	r.record(pattern)
	r.ServeMux.Handle(pattern, handler)
}

func (r *Router) record(pattern string) {
	r.mu.Lock()
	r.patterns = append(r.patterns, pattern)
	r.mu.Unlock()
}

// Routes returns the registered patterns, sorted by path then method.
func (r *Router) Routes() []string {
	r.mu.Lock()
	out := append([]string(nil), r.patterns...)
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		pi, pj := routePath(out[i]), routePath(out[j])
		if pi != pj {
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out
}

func routePath(pattern string) string {
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		return pattern[i+1:]
	}
	return pattern
}

func NewMux(db *sql.DB, m *metrics.Metrics) *Router {
	r := &Router{ServeMux: http.NewServeMux()}
	registerHealthcheck(r, db)
	if m != nil {
		r.Handle("GET /metrics", m.Handler())
	}
	r.HandleFunc("GET /routes", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(strings.Join(r.Routes(), "\n") + "\n"))
	})
	return r
}
