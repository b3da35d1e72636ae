package exhibit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Sternrassler/exhibit-client/pkg/client"
	"github.com/Sternrassler/exhibit-client/pkg/logging"
	"github.com/Sternrassler/exhibit-client/pkg/pagination"
)

var (
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exhibit_queries_total",
			Help: "Exhibit queries by outcome (ok, empty, failed)",
		},
		[]string{"outcome"},
	)

	groupsLoadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exhibit_groups_loaded_total",
			Help: "Groups whose detail fetches have all completed",
		},
	)

	groupLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exhibit_group_load_duration_seconds",
			Help:    "Time from group fan-out until the last detail completes",
			Buckets: prometheus.DefBuckets,
		},
	)

	itemFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exhibit_item_failures_total",
			Help: "Detail fetches that yielded no artifact",
		},
	)

	staleCompletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exhibit_stale_completions_total",
			Help: "Completions discarded because their session was replaced",
		},
	)
)

// inboxSize bounds the number of queued actor messages.
const inboxSize = 64

// Catalog is the subset of the catalog client the orchestrator needs.
// *client.Client satisfies it.
type Catalog interface {
	FetchSummary(ctx context.Context, query string) (*client.ExhibitSummary, error)
	FetchDetail(ctx context.Context, id int) (*client.Artifact, error)
}

// Config configures an Orchestrator.
//
// Hooks run on the orchestrator goroutine. They must return quickly and must
// not call State, Items or Sequencer methods, which wait for that goroutine.
type Config struct {
	// MaxGroupSize is the number of ids fetched per group (default: 18).
	MaxGroupSize int

	// MaxConcurrency bounds concurrent detail fetches (default: 8).
	MaxConcurrency int

	// PreloadRatio is the fraction of loaded items after which a visible
	// item triggers the next group (default: 0.75).
	PreloadRatio float64

	// OnGroupReady receives the artifacts appended by a completed group.
	OnGroupReady func(group int, items []client.Artifact)

	// OnQueryFailed is called once when the summary fetch fails.
	OnQueryFailed func(query string, err error)

	// OnExhibitEmpty is called when a query matches nothing.
	OnExhibitEmpty func(query string)

	// OnCurrentChanged is called when the sequencer's current item changes.
	OnCurrentChanged func(index int, item client.Artifact)
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MaxGroupSize:   pagination.DefaultMaxGroupSize,
		MaxConcurrency: 8,
		PreloadRatio:   0.75,
	}
}

// Orchestrator loads an exhibit group by group. All session state lives on a
// single goroutine; public methods hand closures to it.
type Orchestrator struct {
	catalog Catalog
	config  Config
	logger  zerolog.Logger
	sem     *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan func()
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	// Owned by the actor goroutine
	session *session
	items   []client.Artifact
	seq     *Sequencer
}

// New creates an Orchestrator and starts its goroutine.
func New(catalog Catalog, cfg Config) (*Orchestrator, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}

	defaults := DefaultConfig()
	if cfg.MaxGroupSize == 0 {
		cfg.MaxGroupSize = defaults.MaxGroupSize
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = defaults.MaxConcurrency
	}
	if cfg.PreloadRatio == 0 {
		cfg.PreloadRatio = defaults.PreloadRatio
	}

	if cfg.MaxGroupSize < 0 {
		return nil, fmt.Errorf("max_group_size must be > 0 (got %d)", cfg.MaxGroupSize)
	}
	if cfg.MaxConcurrency < 0 {
		return nil, fmt.Errorf("max_concurrency must be > 0 (got %d)", cfg.MaxConcurrency)
	}
	if cfg.PreloadRatio < 0 || cfg.PreloadRatio > 1 {
		return nil, fmt.Errorf("preload_ratio must be within (0, 1] (got %g)", cfg.PreloadRatio)
	}

	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		catalog: catalog,
		config:  cfg,
		logger:  logging.NewLogger(logging.ComponentOrchestrator),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		ctx:     ctx,
		cancel:  cancel,
		inbox:   make(chan func(), inboxSize),
		done:    make(chan struct{}),
	}
	o.seq = &Sequencer{o: o}

	o.wg.Add(1)
	go o.loop()

	return o, nil
}

func (o *Orchestrator) loop() {
	defer o.wg.Done()
	for {
		select {
		case fn := <-o.inbox:
			fn()
		case <-o.done:
			return
		}
	}
}

// post queues fn for the actor goroutine. It reports false once closed.
func (o *Orchestrator) post(fn func()) bool {
	select {
	case o.inbox <- fn:
		return true
	case <-o.done:
		return false
	}
}

// call runs fn on the actor goroutine and waits for it.
func (o *Orchestrator) call(fn func()) bool {
	reply := make(chan struct{})
	if !o.post(func() {
		fn()
		close(reply)
	}) {
		return false
	}
	select {
	case <-reply:
		return true
	case <-o.done:
		return false
	}
}

// StartQuery replaces the current session with a new query. It is ignored
// while a summary fetch is outstanding.
func (o *Orchestrator) StartQuery(query string) {
	o.post(func() { o.startQuery(query) })
}

// AdvanceToNextGroup fans out the next group once the current one is ready.
func (o *Orchestrator) AdvanceToNextGroup() {
	o.post(o.advance)
}

// State returns a snapshot of the current session.
func (o *Orchestrator) State() Snapshot {
	var snap Snapshot
	if !o.call(func() { snap = o.snapshot() }) {
		snap.State = Idle
	}
	return snap
}

// Items returns a copy of the loaded artifacts in presentation order.
func (o *Orchestrator) Items() []client.Artifact {
	var items []client.Artifact
	o.call(func() { items = cloneItems(o.items) })
	return items
}

// Sequencer returns the presentation cursor over the loaded items.
func (o *Orchestrator) Sequencer() *Sequencer {
	return o.seq
}

// Close stops the orchestrator and cancels outstanding fetches.
func (o *Orchestrator) Close() error {
	o.once.Do(func() {
		o.cancel()
		close(o.done)
		o.wg.Wait()
	})
	return nil
}

func (o *Orchestrator) startQuery(query string) {
	if o.session != nil && o.session.summaryInFlight {
		o.logger.Debug().
			Str("query", query).
			Str("pending_query", o.session.query).
			Msg("Summary fetch outstanding, ignoring query")
		return
	}

	s := newSession(o.ctx, query)
	o.session = s
	o.items = nil
	o.seq.index = 0

	o.logger.Info().
		Str("query", query).
		Str("session_id", s.id.String()).
		Msg("Starting query")

	go func() {
		summary, err := o.catalog.FetchSummary(s.ctx, query)
		o.post(func() { o.summaryDone(s.id, summary, err) })
	}()
}

func (o *Orchestrator) summaryDone(sessionID uuid.UUID, summary *client.ExhibitSummary, err error) {
	s := o.session
	if s == nil || s.id != sessionID {
		staleCompletionsTotal.Inc()
		return
	}
	s.summaryInFlight = false

	if err != nil {
		s.err = err
		o.items = nil
		queriesTotal.WithLabelValues("failed").Inc()
		o.logger.Warn().
			Err(err).
			Str("query", s.query).
			Str("session_id", s.id.String()).
			Str("error_kind", string(client.KindOf(err))).
			Msg("Summary fetch failed")
		if o.config.OnQueryFailed != nil {
			o.config.OnQueryFailed(s.query, err)
		}
		return
	}

	s.groups = pagination.Partition(summary.ObjectIDs, o.config.MaxGroupSize)
	s.numberOfGroups = s.groups.Len()

	if s.numberOfGroups == 0 {
		queriesTotal.WithLabelValues("empty").Inc()
		o.logger.Info().
			Str("query", s.query).
			Str("session_id", s.id.String()).
			Msg("Exhibit is empty")
		if o.config.OnExhibitEmpty != nil {
			o.config.OnExhibitEmpty(s.query)
		}
		return
	}

	queriesTotal.WithLabelValues("ok").Inc()
	o.logger.Debug().
		Str("session_id", s.id.String()).
		Int("ids", len(summary.ObjectIDs)).
		Int("groups", s.numberOfGroups).
		Msg("Exhibit partitioned")

	s.currentGroup = 1
	o.fanOut()
}

func (o *Orchestrator) advance() {
	s := o.session
	if s == nil || s.summaryInFlight || s.err != nil {
		return
	}
	if s.groupInFlight || !s.groupReady {
		o.logger.Debug().Int("group", s.currentGroup).Msg("Group in flight, not advancing")
		return
	}
	if s.currentGroup >= s.numberOfGroups {
		return
	}

	s.currentGroup++
	o.fanOut()
}

// fanOut issues one detail fetch per id of the current group.
func (o *Orchestrator) fanOut() {
	s := o.session
	ids, ok := s.groups.Group(s.currentGroup)
	if !ok {
		return
	}

	group := s.currentGroup
	s.groupReady = false
	s.groupInFlight = true
	s.groupStarted = time.Now()
	s.results = make([]*client.Artifact, len(ids))
	s.inFlight = make(map[int]int, len(ids))
	for pos, id := range ids {
		s.inFlight[pos] = id
	}

	o.logger.Debug().
		Str("session_id", s.id.String()).
		Int("group", group).
		Int("size", len(ids)).
		Msg("Fetching group")

	for pos, id := range ids {
		go o.fetchDetail(s, group, pos, id)
	}
}

func (o *Orchestrator) fetchDetail(s *session, group, pos, id int) {
	if err := o.sem.Acquire(s.ctx, 1); err != nil {
		o.post(func() { o.detailDone(s.id, group, pos, nil, err) })
		return
	}
	artifact, err := o.catalog.FetchDetail(s.ctx, id)
	o.sem.Release(1)

	o.post(func() { o.detailDone(s.id, group, pos, artifact, err) })
}

func (o *Orchestrator) detailDone(sessionID uuid.UUID, group, pos int, artifact *client.Artifact, err error) {
	s := o.session
	if s == nil || s.id != sessionID || s.currentGroup != group {
		staleCompletionsTotal.Inc()
		return
	}

	id, ok := s.inFlight[pos]
	if !ok {
		return
	}
	delete(s.inFlight, pos)

	if err != nil || artifact == nil {
		itemFailuresTotal.Inc()
		o.logger.Debug().
			Err(err).
			Int("object_id", id).
			Int("group", group).
			Msg("No detail for object")
	} else {
		s.results[pos] = artifact
	}

	if len(s.inFlight) > 0 {
		return
	}
	o.groupDone()
}

// groupDone appends the group's artifacts in id order and publishes them.
func (o *Orchestrator) groupDone() {
	s := o.session
	first := len(o.items)
	for _, artifact := range s.results {
		if artifact != nil {
			o.items = append(o.items, *artifact)
		}
	}
	added := cloneItems(o.items[first:])

	s.results = nil
	s.groupInFlight = false
	s.groupReady = true

	groupsLoadedTotal.Inc()
	groupLoadDuration.Observe(time.Since(s.groupStarted).Seconds())

	o.logger.Info().
		Str("session_id", s.id.String()).
		Int("group", s.currentGroup).
		Int("of", s.numberOfGroups).
		Int("items", len(added)).
		Dur("duration", time.Since(s.groupStarted)).
		Msg("Group ready")

	if o.config.OnGroupReady != nil {
		o.config.OnGroupReady(s.currentGroup, added)
	}

	if first == 0 && len(o.items) > 0 {
		o.seq.index = 0
		o.seq.emit()
	}
}

func (o *Orchestrator) snapshot() Snapshot {
	snap := Snapshot{State: Idle}
	s := o.session
	if s == nil {
		return snap
	}

	snap.State = s.state()
	snap.Query = s.query
	snap.CurrentGroup = s.currentGroup
	snap.NumberOfGroups = s.numberOfGroups
	snap.InFlight = len(s.inFlight)
	snap.GroupReady = s.groupReady
	snap.Items = cloneItems(o.items)
	snap.Err = s.err
	return snap
}

func cloneItems(items []client.Artifact) []client.Artifact {
	if items == nil {
		return nil
	}
	out := make([]client.Artifact, len(items))
	copy(out, items)
	return out
}
