// Package server exposes a minimal HTTP surface over a *zim.Archive: raw
// entry bytes, addressed by full URL, with the archive's own MIME type
// attached. It exists to exercise pkg/zim's read API end to end, not as
// a content-rendering frontend (that job stays out of core scope).
package server

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/bevelgacom/gozim/internal/search"
	"github.com/bevelgacom/gozim/pkg/zim"
)

var (
	archive   *zim.Archive
	searchIdx *search.Index
	randomIDs []int
	randomMu  sync.Mutex
)

const randomIDCacheSize = 100

// InitArchive opens path and keeps the resulting *zim.Archive as the
// process-wide handle every route reads from, mirroring the teacher's
// package-level wiki reader.
func InitArchive(path string) error {
	src, err := zim.OpenFile(path, false)
	if err != nil {
		return err
	}
	a, err := zim.Open(src, 0, zim.NewPolicy())
	if err != nil {
		return err
	}
	archive = a
	refillRandomIDs()

	if idx, err := search.Open(search.DefaultIndexPath(path)); err == nil {
		searchIdx = idx
	} else {
		log.Printf("search index unavailable, /search disabled: %v", err)
	}
	return nil
}

func refillRandomIDs() {
	randomMu.Lock()
	defer randomMu.Unlock()
	n := archive.EntryCount()
	if n == 0 {
		return
	}
	randomIDs = randomIDs[:0]
	for i := 0; i < randomIDCacheSize && i < n; i++ {
		randomIDs = append(randomIDs, i*n/randomIDCacheSize)
	}
}

func nextRandomID() (int, bool) {
	randomMu.Lock()
	defer randomMu.Unlock()
	if len(randomIDs) == 0 {
		return 0, false
	}
	id := randomIDs[0]
	randomIDs = randomIDs[1:]
	return id, true
}

// RegisterRoutes wires the entry, metadata, and random-entry routes onto
// e, with the same global rate limiter the teacher applies to every
// route (its comment about Kannel no longer applies here, so routes are
// limited per remote address instead of collapsing to one bucket).
func RegisterRoutes(e *echo.Echo) {
	config := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(5),
				Burst:     10,
				ExpiresIn: 3 * time.Minute,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.String(http.StatusForbidden, "rate limit error")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.String(http.StatusTooManyRequests, "too many requests")
		},
	}
	e.Use(middleware.RateLimiterWithConfig(config))

	e.GET("/", serveMainPage)
	e.GET("/entry/*", serveEntry)
	e.GET("/meta/:key", serveMetadata)
	e.GET("/random", serveRandom)
	e.GET("/search", serveSearch)
}

func serveMainPage(c echo.Context) error {
	e, err := archive.MainPage()
	if err != nil {
		return c.String(http.StatusNotFound, "no main page set")
	}
	return serveResolvedEntry(c, e)
}

func serveEntry(c echo.Context) error {
	full := c.Param("*")
	e, err := archive.GetEntryByFullUrl(full)
	if err != nil {
		log.Printf("entry lookup failed for %q: %v", full, err)
		return c.String(http.StatusNotFound, "not found")
	}
	return serveResolvedEntry(c, e)
}

func serveResolvedEntry(c echo.Context, e *zim.Entry) error {
	resolved, err := e.Resolve()
	if err != nil {
		return c.String(http.StatusInternalServerError, "redirect resolution failed")
	}
	data, err := resolved.Data()
	if err != nil {
		return c.String(http.StatusInternalServerError, "could not read entry")
	}
	mt := resolved.MimeType()
	if mt == "" {
		mt = "application/octet-stream"
	}
	return c.Blob(http.StatusOK, mt, data)
}

func serveMetadata(c echo.Context) error {
	v, err := archive.Metadata(c.Param("key"))
	if err != nil {
		return c.String(http.StatusNotFound, "no such metadata key")
	}
	return c.Blob(http.StatusOK, "text/plain; charset=utf-8", v)
}

func serveSearch(c echo.Context) error {
	if searchIdx == nil {
		return c.String(http.StatusServiceUnavailable, "search index not loaded")
	}
	q := c.QueryParam("q")
	if q == "" {
		return c.String(http.StatusBadRequest, "missing q parameter")
	}
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	results, err := searchIdx.Search(q, limit)
	if err != nil {
		return c.String(http.StatusInternalServerError, "search failed")
	}
	return c.JSON(http.StatusOK, results)
}

func serveRandom(c echo.Context) error {
	id, ok := nextRandomID()
	if !ok {
		return c.String(http.StatusServiceUnavailable, "archive not ready")
	}
	e, err := archive.GetEntryByIndex(id)
	if err != nil {
		return c.String(http.StatusInternalServerError, "lookup failed")
	}
	if len(randomIDs) == 0 {
		go refillRandomIDs()
	}
	return serveResolvedEntry(c, e)
}

// GetZIMPath returns the archive path from the environment or a default
// relative location, the same fallback convention the teacher used.
func GetZIMPath() string {
	if path := os.Getenv("GOZIM_FILE"); path != "" {
		return path
	}
	return "./data/archive.zim"
}
