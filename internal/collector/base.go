package collector

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/todo"
)

// base carries what every concrete collector needs.
type base struct {
	source todo.Source
	cfg    *config.Config
	http   *http.Client
	lookup *LookupCache
	logger zerolog.Logger
	now    func() time.Time
}

func newBase(source todo.Source, deps Deps) base {
	sc := deps.Config.Source(string(source))
	client := deps.HTTP
	if client != nil {
		client = RateLimited(client, sc.RatePerSecond, sc.Burst)
	}
	return base{
		source: source,
		cfg:    deps.Config,
		http:   client,
		lookup: deps.Lookup,
		logger: deps.Logger.With().Str("component", "collector").Str("source", string(source)).Logger(),
		now:    deps.Now,
	}
}

func (b base) Source() todo.Source { return b.source }

func (b base) Enabled() bool { return b.cfg.SourceEnabled(string(b.source)) }

func (b base) settings() config.SourceConfig { return b.cfg.Source(string(b.source)) }

func (b base) batchSize(def int) int {
	if n := b.settings().BatchSize; n > 0 {
		return n
	}
	return def
}

func (b base) baseURL(def string) string {
	if u := b.settings().BaseURL; u != "" {
		return u
	}
	return def
}
