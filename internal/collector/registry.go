package collector

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/gather/internal/config"
	"github.com/hpungsan/gather/internal/todo"
)

// Deps are the shared collaborators handed to every collector.
type Deps struct {
	Config *config.Config
	HTTP   *http.Client
	Cache  *IncrementalCache
	Lookup *LookupCache
	Logger zerolog.Logger
	Now    func() time.Time
}

// Factory builds the collector for one source.
type Factory func(deps Deps) Collector

// factories binds every source kind to its implementation.
var factories = map[todo.Source]Factory{
	todo.SourceLinear:       newLinear,
	todo.SourceSlack:        newSlack,
	todo.SourceHumaans:      newHumaans,
	todo.SourceGitHub:       feedFactory(todo.SourceGitHub),
	todo.SourceGmail:        feedFactory(todo.SourceGmail),
	todo.SourceGoogleDocs:   feedFactory(todo.SourceGoogleDocs),
	todo.SourceGoogleSlides: feedFactory(todo.SourceGoogleSlides),
	todo.SourceNotion:       feedFactory(todo.SourceNotion),
	todo.SourceGranola:      feedFactory(todo.SourceGranola),
	todo.SourceDevAnalytics: feedFactory(todo.SourceDevAnalytics),
	todo.SourceCalendar:     feedFactory(todo.SourceCalendar),
	todo.SourceIncidentIO:   feedFactory(todo.SourceIncidentIO),
}

// Registry holds one collector per source.
type Registry struct {
	collectors map[todo.Source]Collector
}

// NewRegistry builds a collector for every known source. Each collector is
// wrapped so incremental runs use and advance the per-source cache.
func NewRegistry(deps Deps) *Registry {
	if deps.Config == nil {
		deps.Config = config.DefaultConfig()
	}
	if deps.HTTP == nil {
		deps.HTTP = NewHTTPClient(0)
	}
	if deps.Lookup == nil {
		deps.Lookup = NewLookupCache(0)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := &Registry{collectors: make(map[todo.Source]Collector, len(factories))}
	for _, source := range todo.AllSources {
		c := factories[source](deps)
		r.collectors[source] = &incremental{Collector: c, cache: deps.Cache, now: deps.Now}
	}
	return r
}

// NewStaticRegistry builds a registry from explicit collectors, for tests and
// embedding.
func NewStaticRegistry(collectors ...Collector) *Registry {
	r := &Registry{collectors: make(map[todo.Source]Collector, len(collectors))}
	for _, c := range collectors {
		r.collectors[c.Source()] = c
	}
	return r
}

// Get returns the collector for source.
func (r *Registry) Get(source todo.Source) (Collector, bool) {
	c, ok := r.collectors[source]
	return c, ok
}

// Enabled returns every enabled collector in the stable source order.
func (r *Registry) Enabled() []Collector {
	var out []Collector
	for _, source := range todo.AllSources {
		if c, ok := r.collectors[source]; ok && c.Enabled() {
			out = append(out, c)
		}
	}
	return out
}

// Select returns the collectors for the named sources, or every enabled
// collector when sources is empty. Naming a disabled source is an error.
func (r *Registry) Select(sources []todo.Source) ([]Collector, error) {
	if len(sources) == 0 {
		return r.Enabled(), nil
	}

	out := make([]Collector, 0, len(sources))
	for _, source := range sources {
		c, ok := r.collectors[source]
		if !ok {
			return nil, fmt.Errorf("no collector registered for %s", source)
		}
		if !c.Enabled() {
			return nil, fmt.Errorf("source %s is disabled in config", source)
		}
		out = append(out, c)
	}
	return out, nil
}
