// Package sweep runs unattended bench sessions over a parameter grid.
//
// Each grid point is run once per seed. A run ends when the last scripted
// target converges, when a target misses the per-target iteration cap, or
// when a fixed Abort policy stops it at the first escalation. Runs execute
// in parallel on independent benches.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/wfslock/internal/bench"
	"github.com/san-kum/wfslock/internal/config"
	"github.com/san-kum/wfslock/internal/metrics"
	"github.com/san-kum/wfslock/internal/operator"
	"github.com/san-kum/wfslock/internal/session"
	"github.com/san-kum/wfslock/internal/stabilize"
	"github.com/san-kum/wfslock/internal/target"
)

const DefaultMaxIterations = 500

var (
	ErrUnknownParam = errors.New("sweep: unknown parameter")
	ErrEmptyGrid    = errors.New("sweep: empty grid")
	ErrNoTargets    = errors.New("sweep: no targets to lock")
)

var setters = map[string]func(*config.Config, float64){
	"gain":      func(c *config.Config, v float64) { c.Bench.Gain = v },
	"noise":     func(c *config.Config, v float64) { c.Bench.Noise = v },
	"drift":     func(c *config.Config, v float64) { c.Bench.Drift = v },
	"response":  func(c *config.Config, v float64) { c.Bench.Response = v },
	"tolerance": func(c *config.Config, v float64) { c.Controller.Tolerance = v },
	"limit":     func(c *config.Config, v float64) { c.Controller.EscalationLimit = int(v) },
}

// Params lists the parameter names a sweep can vary.
func Params() []string {
	names := make([]string, 0, len(setters))
	for name := range setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Point is one assignment of values to the swept parameters.
type Point map[string]float64

func (p Point) String() string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + strconv.FormatFloat(p[name], 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

type Result struct {
	Point       Point
	Seed        int64
	Locked      bool
	Aborted     bool
	Iterations  int
	Escalations int
	Metrics     map[string]float64
}

type Option func(*Sweep)

func WithSeeds(n int) Option { return func(s *Sweep) { s.seeds = n } }

// WithMaxIterations caps the iterations a single target may take to converge.
func WithMaxIterations(n int) Option { return func(s *Sweep) { s.maxIter = n } }

func WithWorkers(n int) Option { return func(s *Sweep) { s.workers = n } }

func WithLogger(l zerolog.Logger) Option { return func(s *Sweep) { s.log = l } }

type Sweep struct {
	base    config.Config
	names   []string
	ranges  [][]float64
	seeds   int
	maxIter int
	workers int
	log     zerolog.Logger
}

// New prepares a sweep over base. names and ranges are parallel slices.
func New(base *config.Config, names []string, ranges [][]float64, opts ...Option) (*Sweep, error) {
	if len(names) != len(ranges) {
		return nil, fmt.Errorf("sweep: %d names for %d ranges", len(names), len(ranges))
	}
	if len(names) == 0 {
		return nil, ErrEmptyGrid
	}
	for i, name := range names {
		if _, ok := setters[name]; !ok {
			return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownParam, name, Params())
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("%w: no values for %q", ErrEmptyGrid, name)
		}
	}
	s := &Sweep{
		base:    *base,
		names:   names,
		ranges:  ranges,
		seeds:   1,
		maxIter: DefaultMaxIterations,
		workers: runtime.NumCPU(),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.seeds < 1 {
		s.seeds = 1
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.maxIter < 1 {
		s.maxIter = DefaultMaxIterations
	}
	return s, nil
}

// Points returns the cartesian product of the ranges, first name slowest.
func (s *Sweep) Points() []Point {
	var out []Point
	s.expand(0, Point{}, &out)
	return out
}

func (s *Sweep) expand(depth int, current Point, out *[]Point) {
	if depth == len(s.names) {
		p := make(Point, len(current))
		for k, v := range current {
			p[k] = v
		}
		*out = append(*out, p)
		return
	}
	for _, v := range s.ranges[depth] {
		current[s.names[depth]] = v
		s.expand(depth+1, current, out)
	}
	delete(current, s.names[depth])
}

// Run executes every point for every seed and returns the results in grid
// order. A device failure in any run cancels the rest.
func (s *Sweep) Run(ctx context.Context) ([]Result, error) {
	points := s.Points()
	results := make([]Result, len(points)*s.seeds)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, p := range points {
		p := p
		for k := 0; k < s.seeds; k++ {
			idx := i*s.seeds + k
			seed := s.base.Bench.Seed + int64(k)
			g.Go(func() error {
				r, err := s.runOne(gctx, p, seed)
				if err != nil {
					return fmt.Errorf("%s seed %d: %w", p, seed, err)
				}
				results[idx] = r
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Sweep) runOne(ctx context.Context, p Point, seed int64) (Result, error) {
	cfg := s.base
	for name, v := range p {
		setters[name](&cfg, v)
	}
	cfg.Bench.Seed = seed
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	targets, err := cfg.WatchTargets()
	if err != nil {
		return Result{}, err
	}
	if len(targets) == 0 {
		return Result{}, ErrNoTargets
	}
	decision, err := cfg.WatchEscalation()
	if err != nil {
		return Result{}, err
	}
	params, err := cfg.BenchParams()
	if err != nil {
		return Result{}, err
	}
	// the session releases the bench from here on, including when New fails
	b, err := bench.New(params)
	if err != nil {
		return Result{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop, locked := s.stopper(uint64(len(targets)), cancel)

	collector := metrics.NewCollector(1, metrics.Defaults(cfg.Controller.Tolerance)...)
	log := s.log.With().Str("point", p.String()).Int64("seed", seed).Logger()
	sess, err := session.New(cfg.SessionConfig(), b.Devices(), target.NewScript(targets...), operator.Fixed(decision),
		session.WithLogger(log),
		session.WithObserver(collector),
		session.WithObserver(stop),
	)
	if err != nil {
		return Result{}, err
	}

	res := Result{Point: p, Seed: seed}
	runErr := sess.Run(runCtx)
	switch {
	case errors.Is(runErr, operator.ErrAborted):
		res.Aborted = true
	case runErr != nil:
		return Result{}, runErr
	case ctx.Err() != nil:
		return Result{}, ctx.Err()
	}

	stats := sess.Stats()
	res.Locked = *locked
	res.Iterations = stats.Iterations
	res.Escalations = stats.Escalations
	res.Metrics = make(map[string]float64)
	for _, m := range collector.Summary() {
		res.Metrics[m.Name] = m.Value
	}
	log.Debug().Bool("locked", res.Locked).Int("iterations", res.Iterations).Msg("run finished")
	return res, nil
}

// stopper ends a run once generation last converges, or once the current
// target goes maxIter iterations without converging. A target that already
// converged is not capped while the next one is being handed over. The
// observer runs on the loop goroutine; *locked is read after Run returns.
func (s *Sweep) stopper(last uint64, cancel context.CancelFunc) (stabilize.Observer, *bool) {
	locked := new(bool)
	var (
		gen       uint64
		since     int
		converged bool
	)
	obs := stabilize.ObserverFunc(func(r stabilize.Report) {
		if r.Generation != gen {
			gen = r.Generation
			since = 0
			converged = false
		}
		since++
		if r.Converged {
			converged = true
			if gen == last {
				*locked = true
				cancel()
			}
		}
		if !converged && since >= s.maxIter {
			cancel()
		}
	})
	return obs, locked
}

// Summary aggregates the runs of one grid point.
type Summary struct {
	Point Point
	Runs  int
	// LockRate is the fraction of runs that locked every target.
	LockRate float64
	// Mean is the mean of each metric over the runs that locked.
	Mean map[string]float64
}

// Summarize groups results by point, preserving grid order.
func Summarize(results []Result) []Summary {
	var out []Summary
	index := make(map[string]int)
	counts := make(map[string]map[string]int)
	for _, r := range results {
		key := r.Point.String()
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Summary{Point: r.Point, Mean: make(map[string]float64)})
			counts[key] = make(map[string]int)
		}
		out[i].Runs++
		if !r.Locked {
			continue
		}
		out[i].LockRate++
		for name, v := range r.Metrics {
			out[i].Mean[name] += v
			counts[key][name]++
		}
	}
	for i := range out {
		key := out[i].Point.String()
		for name, n := range counts[key] {
			out[i].Mean[name] /= float64(n)
		}
		out[i].LockRate /= float64(out[i].Runs)
	}
	return out
}

// Best returns the point that locked on every run with the lowest mean of
// metric. ok is false when no point qualifies.
func Best(summaries []Summary, metric string) (best Summary, ok bool) {
	lowest := math.Inf(1)
	for _, s := range summaries {
		if s.LockRate < 1 {
			continue
		}
		v, has := s.Mean[metric]
		if !has {
			continue
		}
		if v < lowest {
			lowest = v
			best = s
			ok = true
		}
	}
	return best, ok
}

// ParseParam parses "name=v1,v2,...".
func ParseParam(s string) (string, []float64, error) {
	name, list, found := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !found || name == "" || list == "" {
		return "", nil, fmt.Errorf("sweep: want name=v1,v2,... got %q", s)
	}
	if _, ok := setters[name]; !ok {
		return "", nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownParam, name, Params())
	}
	var values []float64
	for _, tok := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return "", nil, fmt.Errorf("sweep: bad value %q for %s", tok, name)
		}
		values = append(values, v)
	}
	return name, values, nil
}
