package mw

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

var requestIDKey = http.CanonicalHeaderKey(RequestIDHeader)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// writeGeneration counts successful writes. A GET response is only stored when no
// write completed while it was being built.
type writeGeneration struct {
	mu  sync.Mutex
	gen uint64
}

func (g *writeGeneration) current() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

// Cache serves repeated GET requests from memory. Any successful non-GET request
// flushes the whole cache, so reads never outlive the state they were built from.
func Cache(store *cache.Cache, duration time.Duration) gin.HandlerFunc {
	writes := &writeGeneration{}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			if c.Writer.Status() < http.StatusBadRequest {
				writes.mu.Lock()
				writes.gen++
				store.Flush()
				writes.mu.Unlock()
			}
			return
		}

		key := c.Request.URL.RequestURI()
		if resp, found := store.Get(key); found {
			cached := resp.(cachedResponse)
			for k, v := range cached.headers {
				if k == requestIDKey {
					continue
				}
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		started := writes.current()
		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		// Only cache successful responses
		if blw.Status() < 200 || blw.Status() >= 300 {
			return
		}
		writes.mu.Lock()
		defer writes.mu.Unlock()
		if writes.gen != started {
			return
		}
		store.Set(key, cachedResponse{
			status:  blw.Status(),
			headers: blw.Header().Clone(),
			body:    bytes.Clone(blw.body.Bytes()),
		}, duration)
	}
}
