package commands

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/leadpool/internal/client"
	"github.com/wolfeidau/leadpool/internal/logger"
)

type Globals struct {
	Debug   bool
	Version string
}

// ClientFlags are shared by every command that talks to the server.
type ClientFlags struct {
	Server   string        `help:"Server URL" default:"http://localhost:8080" env:"LEADPOOL_SERVER"`
	Token    string        `help:"JWT access token" required:"" env:"LEADPOOL_TOKEN"`
	Timeout  time.Duration `help:"Request timeout" default:"30s"`
	CacheDir string        `help:"directory for the HTTP response cache, in memory when empty" env:"LEADPOOL_CACHE_DIR"`
}

func (f ClientFlags) client() *client.Client {
	return client.New(client.Config{
		ServerURL: f.Server,
		Token:     f.Token,
		Timeout:   f.Timeout,
		CacheDir:  f.CacheDir,
	})
}

// setupLogger routes library logging to stderr, keeping it to warnings unless debugging.
func setupLogger(globals *Globals) {
	l := logger.Setup(globals.Debug)
	if !globals.Debug {
		l = l.Level(zerolog.WarnLevel)
	}
	log.Logger = l
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
