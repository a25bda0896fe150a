// Package site serves the browser frontend of the study.
package site

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
)

// ErrStaticDir is returned when the configured frontend directory is unusable.
var ErrStaticDir = errors.New("static directory is not usable")

// Option configures Register.
type Option func(*options)

type options struct {
	dir string
}

// WithDir serves the frontend from dir on disk instead of the embedded copy.
// An empty dir keeps the embedded files.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// Register attaches the frontend routes to mux: GET / serves index.html and
// GET /<path> serves the matching asset.
func Register(_ context.Context, mux *http.ServeMux, opts ...Option) error {
	if mux == nil {
		panic("mux is nil")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	root := FS()
	if o.dir != "" {
		fi, err := os.Stat(o.dir)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStaticDir, err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrStaticDir, o.dir)
		}
		root = http.Dir(o.dir)
	}

	mux.Handle("GET /", noCache(http.FileServer(root)))
	return nil
}

// noCache keeps study participants on the latest script after a deploy.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
	})
}
