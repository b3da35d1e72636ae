package imagecache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/exhibit-client/pkg/client"
	"github.com/Sternrassler/exhibit-client/pkg/logging"
)

var (
	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exhibit_image_cache_hits_total",
			Help: "Image resolves served from memory",
		},
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exhibit_image_cache_misses_total",
			Help: "Image resolves that required a fetch",
		},
	)

	cacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exhibit_image_cache_evictions_total",
			Help: "Images evicted from the LRU",
		},
	)

	resolveErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exhibit_image_resolve_errors_total",
			Help: "Failed image resolves by error kind",
		},
		[]string{"kind"},
	)

	assignCancellations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exhibit_image_assign_cancellations_total",
			Help: "Surface tasks cancelled by a newer assignment or Cancel",
		},
	)

	staleCompletions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exhibit_image_stale_completions_total",
			Help: "Image completions dropped because their surface moved on",
		},
	)
)

const (
	// DefaultCacheEntries is the default LRU capacity.
	DefaultCacheEntries = 128

	inboxSize = 64
)

// Fetcher downloads image bytes. *client.Client satisfies it.
type Fetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Surface displays images. Implementations must be comparable (typically
// pointers). SetImage is called on the coordinator goroutine.
type Surface interface {
	SetImage(img *Image)
}

// Config configures a Coordinator.
type Config struct {
	// CacheEntries is the LRU capacity (default: 128).
	CacheEntries int

	// UnavailableImage is shown for items without an image. May be nil.
	UnavailableImage *Image
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{CacheEntries: DefaultCacheEntries}
}

// task is the live image load of one surface.
type task struct {
	generation uint64
	url        string
	cancel     context.CancelFunc
}

// Coordinator resolves image URLs through a bounded cache and binds them to
// surfaces. Cache and surface registrations are owned by one goroutine.
type Coordinator struct {
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan func()
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	// Owned by the actor goroutine
	cache      *lru.Cache[string, *Image]
	tasks      map[Surface]*task
	generation uint64
}

// New creates a Coordinator and starts its goroutine.
func New(fetcher Fetcher, cfg Config) (*Coordinator, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.CacheEntries == 0 {
		cfg.CacheEntries = DefaultCacheEntries
	}
	if cfg.CacheEntries < 0 {
		return nil, fmt.Errorf("cache_entries must be > 0 (got %d)", cfg.CacheEntries)
	}

	cache, err := lru.NewWithEvict[string, *Image](cfg.CacheEntries, func(string, *Image) {
		cacheEvictions.Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("create image cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		fetcher: fetcher,
		config:  cfg,
		logger:  logging.NewLogger(logging.ComponentImageCache),
		ctx:     ctx,
		cancel:  cancel,
		inbox:   make(chan func(), inboxSize),
		done:    make(chan struct{}),
		cache:   cache,
		tasks:   make(map[Surface]*task),
	}

	c.wg.Add(1)
	go c.loop()

	return c, nil
}

func (c *Coordinator) loop() {
	defer c.wg.Done()
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) post(fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Coordinator) call(fn func()) bool {
	reply := make(chan struct{})
	if !c.post(func() {
		fn()
		close(reply)
	}) {
		return false
	}
	select {
	case <-reply:
		return true
	case <-c.done:
		return false
	}
}

// Resolve loads the image behind url and passes it to done on the
// coordinator goroutine. Cached images are returned without a fetch.
func (c *Coordinator) Resolve(url string, done func(*Image, error)) {
	c.post(func() { c.resolve(c.ctx, url, done) })
}

// Assign binds url to surface. Any earlier load for the surface is
// cancelled, the placeholder is shown at once and the image replaces it on
// success. A missing image shows Config.UnavailableImage; other failures
// keep the placeholder.
func (c *Coordinator) Assign(surface Surface, url string, placeholder *Image) {
	c.post(func() { c.assign(surface, url, placeholder) })
}

// Cancel abandons the surface's pending load, if any.
func (c *Coordinator) Cancel(surface Surface) {
	c.post(func() { c.cancelTask(surface) })
}

// InFlight reports whether surface has a pending load.
func (c *Coordinator) InFlight(surface Surface) bool {
	var inFlight bool
	c.call(func() {
		_, inFlight = c.tasks[surface]
	})
	return inFlight
}

// Cached returns the cached image for url without changing its recency.
func (c *Coordinator) Cached(url string) (*Image, bool) {
	var (
		img *Image
		ok  bool
	)
	c.call(func() { img, ok = c.cache.Peek(url) })
	return img, ok
}

// Len returns the number of cached images.
func (c *Coordinator) Len() int {
	var n int
	c.call(func() { n = c.cache.Len() })
	return n
}

// Close stops the coordinator and cancels pending loads.
func (c *Coordinator) Close() error {
	c.once.Do(func() {
		c.cancel()
		close(c.done)
		c.wg.Wait()
	})
	return nil
}

func (c *Coordinator) resolve(ctx context.Context, url string, done func(*Image, error)) {
	if url == "" || url == client.UnavailableImageURL {
		resolveErrors.WithLabelValues(string(client.UnavailableImage)).Inc()
		done(nil, &client.CatalogError{Kind: client.UnavailableImage, Op: "image"})
		return
	}

	if img, ok := c.cache.Get(url); ok {
		cacheHits.Inc()
		c.logger.Debug().Str("url", url).Msg("Image cache hit")
		done(img, nil)
		return
	}
	cacheMisses.Inc()

	go func() {
		img, err := c.load(ctx, url)
		c.post(func() { c.loaded(url, img, err, done) })
	}()
}

// load fetches and decodes url off the coordinator goroutine.
func (c *Coordinator) load(ctx context.Context, url string) (*Image, error) {
	data, err := c.fetcher.FetchImage(ctx, url)
	if err != nil {
		if client.KindOf(err) == "" {
			err = &client.CatalogError{Kind: client.UnableToComplete, Op: "image", Err: err}
		}
		return nil, err
	}
	return Decode(url, data)
}

func (c *Coordinator) loaded(url string, img *Image, err error, done func(*Image, error)) {
	if err != nil {
		kind := client.KindOf(err)
		resolveErrors.WithLabelValues(string(kind)).Inc()
		c.logger.Debug().
			Err(err).
			Str("url", url).
			Str("error_kind", string(kind)).
			Msg("Image resolve failed")
		done(nil, err)
		return
	}

	// A concurrent resolve of the same URL may have landed first
	if cached, ok := c.cache.Get(url); ok {
		img = cached
	} else {
		c.cache.Add(url, img)
	}
	done(img, nil)
}

func (c *Coordinator) assign(surface Surface, url string, placeholder *Image) {
	c.cancelTask(surface)

	c.generation++
	generation := c.generation
	ctx, cancel := context.WithCancel(c.ctx)
	c.tasks[surface] = &task{generation: generation, url: url, cancel: cancel}

	surface.SetImage(placeholder)

	c.resolve(ctx, url, func(img *Image, err error) {
		current, ok := c.tasks[surface]
		if !ok || current.generation != generation {
			staleCompletions.Inc()
			c.logger.Debug().
				Str("url", url).
				Uint64("generation", generation).
				Msg("Discarding stale image completion")
			return
		}
		delete(c.tasks, surface)
		cancel()

		switch {
		case err == nil:
			surface.SetImage(img)
		case client.KindOf(err) == client.UnavailableImage:
			surface.SetImage(c.config.UnavailableImage)
		}
	})
}

func (c *Coordinator) cancelTask(surface Surface) {
	t, ok := c.tasks[surface]
	if !ok {
		return
	}
	t.cancel()
	delete(c.tasks, surface)
	assignCancellations.Inc()
	c.logger.Debug().Str("url", t.url).Msg("Cancelled image load")
}
