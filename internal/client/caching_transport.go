package client

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// NewCachingTransport wraps base with an HTTP cache. Company documents are served with
// an ETag and "no-cache", so cached copies are revalidated and unchanged listings come
// back as 304 Not Modified.
//
// An empty cacheDir keeps the cache in memory; otherwise it persists on disk across runs.
func NewCachingTransport(cacheDir string, base http.RoundTripper) *httpcache.Transport {
	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if cacheDir != "" {
		cache = diskcache.New(cacheDir)
	}

	transport := httpcache.NewTransport(cache)
	transport.Transport = base
	return transport
}
