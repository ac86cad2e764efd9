package commands

import (
	"net/http"
	"time"
)

type Globals struct {
	Debug   bool
	Version string
}

// configureHTTPServer leaves WriteTimeout unset because notification streams stay open
// for as long as the client is connected.
func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
