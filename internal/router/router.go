// Package router picks the per-page handler for a URL from an ordered list
// of (predicate, handler) routes. The first matching route wins.
package router

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Action is what the crawler does with a routed page.
type Action int

const (
	// Extract visits the page and records its content.
	Extract Action = iota
	// Skip neither visits the page nor charges the request budget.
	Skip
)

// String returns the action name.
func (a Action) String() string {
	if a == Skip {
		return "skip"
	}
	return "extract"
}

// Handler describes how a page is processed.
type Handler struct {
	Name        string
	Action      Action
	Selector    string        // CSS selector to wait for and extract; "" means whole document
	WaitTimeout time.Duration // selector wait; 0 means the crawler default
}

// Predicate reports whether a route applies to a URL.
type Predicate func(url string) bool

// Route pairs a predicate with its handler.
type Route struct {
	Pattern string // informational, empty for custom predicates
	Match   Predicate
	Handler Handler
}

// Router evaluates routes in insertion order.
type Router struct {
	routes       []Route
	fallback     Handler
	seedFallback Handler
}

// New creates a router whose unmatched URLs go to fallback.
func New(fallback Handler) *Router {
	return &Router{fallback: fallback, seedFallback: fallback}
}

// Add appends a route.
func (r *Router) Add(match Predicate, h Handler) *Router {
	r.routes = append(r.routes, Route{Match: match, Handler: h})
	return r
}

// AddGlob appends a route matching URLs against a doublestar glob.
func (r *Router) AddGlob(pattern string, h Handler) error {
	pred, err := Glob(pattern)
	if err != nil {
		return err
	}
	r.routes = append(r.routes, Route{Pattern: pattern, Match: pred, Handler: h})
	return nil
}

// Route returns the handler for url.
func (r *Router) Route(url string) Handler {
	if h, ok := r.first(url); ok {
		return h
	}
	return r.fallback
}

// RouteSeed routes a seed URL. Seeds fall through to the seed fallback rather
// than the regular one, so a crawl always starts from its entry points unless
// they are explicitly excluded.
func (r *Router) RouteSeed(url string) Handler {
	if h, ok := r.first(url); ok {
		return h
	}
	return r.seedFallback
}

// Routes returns a copy of the routing table.
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

func (r *Router) first(url string) (Handler, bool) {
	for _, route := range r.routes {
		if route.Match(url) {
			return route.Handler, true
		}
	}
	return Handler{}, false
}

// Glob compiles a doublestar pattern into a predicate over full URLs.
func Glob(pattern string) (Predicate, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}
	return func(url string) bool {
		ok, err := doublestar.Match(pattern, url)
		return err == nil && ok
	}, nil
}

// PatternRoute configures an extra extract route for URLs matching Pattern.
type PatternRoute struct {
	Pattern     string        `yaml:"pattern" json:"pattern"`
	Selector    string        `yaml:"selector" json:"selector"`
	WaitTimeout time.Duration `yaml:"wait_timeout" json:"wait_timeout"`
	Skip        bool          `yaml:"skip" json:"skip"`
}

// Build assembles the crawl routing table: exclude globs first (skip), then
// custom routes, then match globs (extract with the default handler). With
// no match globs every other URL is extracted; otherwise unmatched URLs are
// skipped unless they are seeds.
func Build(match, exclude []string, routes []PatternRoute, extract Handler) (*Router, error) {
	extract.Action = Extract
	if extract.Name == "" {
		extract.Name = "default"
	}

	skipped := Handler{Name: "excluded", Action: Skip}
	unmatched := Handler{Name: "unmatched", Action: Skip}

	r := &Router{fallback: extract, seedFallback: extract}
	if len(match) > 0 {
		r.fallback = unmatched
	}

	for _, pattern := range exclude {
		if err := r.AddGlob(pattern, skipped); err != nil {
			return nil, fmt.Errorf("exclude: %w", err)
		}
	}

	for i, pr := range routes {
		h := Handler{
			Name:        fmt.Sprintf("route-%d", i),
			Action:      Extract,
			Selector:    pr.Selector,
			WaitTimeout: pr.WaitTimeout,
		}
		if pr.Skip {
			h.Action = Skip
		}
		if h.Selector == "" {
			h.Selector = extract.Selector
		}
		if h.WaitTimeout == 0 {
			h.WaitTimeout = extract.WaitTimeout
		}
		if err := r.AddGlob(pr.Pattern, h); err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
	}

	for _, pattern := range match {
		if err := r.AddGlob(pattern, extract); err != nil {
			return nil, fmt.Errorf("match: %w", err)
		}
	}

	return r, nil
}
