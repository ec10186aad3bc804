package app

import (
	"context"
	"net/http"
	"time"

	authapi "worksite/cmd/internal/auth/api"
)

// readyCheck is one dependency pinged by /readyz.
type readyCheck struct {
	name string
	ping func(ctx context.Context) error
}

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	checks []readyCheck,
	auth *authapi.Handler,
	metrics http.Handler,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, c := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := c.ping(ctx)
			cancel()
			if err != nil {
				http.Error(w, c.name+" not ready", http.StatusServiceUnavailable)
				log.Info("readyz."+c.name+".not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	if auth != nil {
		auth.Register(mux)
	}
}
