package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"racesched/internal/fetch"
	appLog "racesched/internal/log"
	"racesched/internal/model"
	"racesched/internal/schedule"
	"racesched/internal/store"
)

// Fetcher retrieves the raw document for a season.
type Fetcher interface {
	FetchSeason(ctx context.Context, src fetch.Source) (fetch.Result, error)
}

// SeasonResult is the outcome of the last successful run for a season.
type SeasonResult struct {
	Year      int
	Events    []model.Event
	Skipped   []string
	FromCache bool
	UpdatedAt time.Time
}

// Catalog keeps the latest result per season for readers such as the web API.
type Catalog struct {
	mu      sync.RWMutex
	seasons map[int]SeasonResult
}

func NewCatalog() *Catalog {
	return &Catalog{seasons: make(map[int]SeasonResult)}
}

func (c *Catalog) Put(r SeasonResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seasons[r.Year] = r
}

func (c *Catalog) Get(year int) (SeasonResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.seasons[year]
	return r, ok
}

// Years lists the seasons held, ascending.
func (c *Catalog) Years() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int, 0, len(c.seasons))
	for y := range c.seasons {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

// Deps wires a Pipeline.
type Deps struct {
	Fetcher     Fetcher
	Sink        store.Sink
	Transformer schedule.Transformer
	// URLTemplate contains a "{year}" placeholder.
	URLTemplate string
	Catalog     *Catalog
	// Now is used for UpdatedAt; defaults to time.Now.
	Now func() time.Time
}

// Pipeline runs fetch -> decode -> transform -> persist for one season at a
// time. Runs are serialized so cron and API triggers do not interleave
// writes for the same files.
type Pipeline struct {
	deps Deps
	mu   sync.Mutex
}

func New(deps Deps) (*Pipeline, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("pipeline: fetcher is nil")
	}
	if deps.Sink == nil {
		return nil, errors.New("pipeline: sink is nil")
	}
	if deps.URLTemplate == "" {
		return nil, errors.New("pipeline: url template is empty")
	}
	if deps.Catalog == nil {
		deps.Catalog = NewCatalog()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{deps: deps}, nil
}

func (p *Pipeline) Catalog() *Catalog { return p.deps.Catalog }

// RunSeason processes one season. Nothing is persisted unless fetch,
// decode and transform all succeed.
func (p *Pipeline) RunSeason(ctx context.Context, year int) (SeasonResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runSeason(ctx, year)
}

func (p *Pipeline) runSeason(ctx context.Context, year int) (SeasonResult, error) {
	started := time.Now()
	src := fetch.Source{Year: year, URL: fetch.SeasonURL(p.deps.URLTemplate, year)}

	fr, err := p.deps.Fetcher.FetchSeason(ctx, src)
	if err != nil {
		return SeasonResult{}, fmt.Errorf("season %d: fetch: %w", year, err)
	}

	rounds, err := schedule.Decode(fr.Body)
	if err != nil {
		return SeasonResult{}, fmt.Errorf("season %d: decode: %w", year, err)
	}

	res, err := p.deps.Transformer.Transform(rounds)
	if err != nil {
		return SeasonResult{}, fmt.Errorf("season %d: transform: %w", year, err)
	}

	skipped := make([]string, 0, len(res.Skipped))
	for _, s := range res.Skipped {
		appLog.Warn("round skipped", "year", year, "round_index", s.Index, "reason", s.Err)
		skipped = append(skipped, s.Error())
	}

	if err := p.deps.Sink.Put(ctx, year, res.Events); err != nil {
		return SeasonResult{}, fmt.Errorf("season %d: persist: %w", year, err)
	}

	out := SeasonResult{
		Year:      year,
		Events:    res.Events,
		Skipped:   skipped,
		FromCache: fr.FromCache,
		UpdatedAt: p.deps.Now().UTC(),
	}
	p.deps.Catalog.Put(out)

	appLog.Info("season synced",
		"year", year,
		"rounds", len(rounds),
		"events", len(res.Events),
		"skipped", len(skipped),
		"from_cache", fr.FromCache,
		"sink", p.deps.Sink.Name(),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return out, nil
}

// RunAll processes seasons in order. A failing season does not stop the
// others; all failures are returned joined.
func (p *Pipeline) RunAll(ctx context.Context, years []int) ([]SeasonResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	results := make([]SeasonResult, 0, len(years))
	var errs []error
	for _, y := range years {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		r, err := p.runSeason(ctx, y)
		if err != nil {
			appLog.Error("season sync failed", err, "year", y)
			errs = append(errs, err)
			continue
		}
		results = append(results, r)
	}
	return results, errors.Join(errs...)
}

// Preload fills the catalog from files already on disk so the API has data
// before the first run completes. Missing files are ignored.
func (p *Pipeline) Preload(dir string, years []int) {
	for _, y := range years {
		events, err := store.Load(dir, y)
		if err != nil {
			appLog.Debug("no persisted season to preload", "year", y, "err", err)
			continue
		}
		p.deps.Catalog.Put(SeasonResult{Year: y, Events: events, FromCache: true})
		appLog.Info("season preloaded", "year", y, "events", len(events))
	}
}
