// Package profiling mounts the pprof endpoints. They expose goroutine stacks
// and heap contents, so they are only mounted behind authentication.
package profiling

import (
	"net/http/pprof"
	"runtime"

	"github.com/go-chi/chi/v5"
)

// Path is the URL prefix of the profiling endpoints
const Path = "/debug/pprof"

// Config holds profiling configuration
type Config struct {
	// BlockRate sets the block profiling rate (0 = disabled)
	BlockRate int
	// MutexFraction sets the mutex profiling fraction (0 = disabled)
	MutexFraction int
}

// DefaultConfig samples every blocking event and mutex contention
func DefaultConfig() Config {
	return Config{BlockRate: 1, MutexFraction: 1}
}

// Register mounts the pprof handlers under Path
func Register(router chi.Router, config Config) {
	runtime.SetBlockProfileRate(config.BlockRate)
	runtime.SetMutexProfileFraction(config.MutexFraction)

	router.Route(Path, func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			r.Handle("/"+name, pprof.Handler(name))
		}
	})
}
