package backend

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vnykmshr/parflow/pkg/common/logging"
	"github.com/vnykmshr/parflow/pkg/common/validation"
	"github.com/vnykmshr/parflow/pkg/config"
	"github.com/vnykmshr/parflow/pkg/metrics"
	"github.com/vnykmshr/parflow/pkg/scheduling/workerpool"
	"github.com/vnykmshr/parflow/pkg/scheduling/worksteal"
)

const module = "backend"

// Options configures a backend.
type Options struct {
	Kind Kind

	// Threads sizes the worker set created up front. Zero means
	// runtime.NumCPU(). Calls asking for more threads grow it.
	Threads int

	// Grain is the work-stealing split threshold; 0 picks one per call.
	Grain int

	// LockOSThread pins native workers to OS threads.
	LockOSThread bool

	Logger  *zerolog.Logger
	Metrics *metrics.Registry
}

// Option modifies Options.
type Option func(*Options)

// WithThreads sets the initial worker count.
func WithThreads(n int) Option {
	return func(o *Options) { o.Threads = n }
}

// WithGrain sets the work-stealing split threshold.
func WithGrain(n int) Option {
	return func(o *Options) { o.Grain = n }
}

// WithLockOSThread controls OS thread pinning of native workers.
func WithLockOSThread(lock bool) Option {
	return func(o *Options) { o.LockOSThread = lock }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = &l }
}

// WithMetrics reports every call to reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *Options) { o.Metrics = reg }
}

// Native creates the native-thread backend. Workers are pinned to OS
// threads unless WithLockOSThread(false) is given. Negative sizes fall back
// to the defaults.
func Native(opts ...Option) Backend {
	return mustNew(Options{Kind: KindNative, LockOSThread: true}, opts)
}

// WorkStealing creates the work-stealing backend. Negative sizes fall back
// to the defaults.
func WorkStealing(opts ...Option) Backend {
	return mustNew(Options{Kind: KindWorkStealing}, opts)
}

func mustNew(o Options, opts []Option) Backend {
	for _, opt := range opts {
		opt(&o)
	}
	o.Threads = max(o.Threads, 0)
	o.Grain = max(o.Grain, 0)

	b, err := New(o)
	if err != nil {
		panic(err) // unreachable: kind and sizes are valid here
	}
	return b
}

// New creates the backend selected by o.Kind.
func New(o Options) (Backend, error) {
	if err := validation.ValidateNonNegative(module, "threads", o.Threads); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative(module, "grain", o.Grain); err != nil {
		return nil, err
	}

	log := logging.Nop()
	if o.Logger != nil {
		log = *o.Logger
	}

	var eng engine
	switch o.Kind {
	case KindNative:
		eng = workerpool.NewWithConfig(workerpool.Config{
			Threads:      o.Threads,
			LockOSThread: o.LockOSThread,
			Logger:       &log,
		})
	case KindWorkStealing:
		eng = worksteal.NewWithConfig(worksteal.Config{
			Workers: o.Threads,
			Grain:   o.Grain,
			Logger:  &log,
		})
	default:
		_, err := ParseKind(string(o.Kind))
		return nil, err
	}

	r := newRunner(o.Kind, eng, log)
	if o.Metrics == nil {
		return r, nil
	}
	return newMetricsBackend(r, o.Metrics), nil
}

// FromConfig creates a backend from loaded configuration. When metrics are
// enabled without a registry, collectors go to prometheus.DefaultRegisterer
// under the configured namespace and labels. Backends created with the same
// namespace and labels share one set of collectors.
func FromConfig(cfg config.Config) (Backend, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kind, err := ParseKind(cfg.Backend)
	if err != nil {
		return nil, err
	}

	log := logging.New(cfg.Logging)
	o := Options{
		Kind:         kind,
		Threads:      cfg.Threads,
		Grain:        cfg.Grain,
		LockOSThread: cfg.LockOSThread,
		Logger:       &log,
	}
	if cfg.Metrics.Enabled {
		reg, err := registryFor(cfg.Metrics)
		if err != nil {
			return nil, err
		}
		o.Metrics = reg
	}
	return New(o)
}

var (
	sharedMu         sync.Mutex
	sharedRegistries = map[string]*metrics.Registry{}
)

// registryFor returns the registry for cfg. Registries on the default
// registerer are cached by namespace and labels since collectors can only
// be registered there once.
func registryFor(cfg metrics.Config) (*metrics.Registry, error) {
	if cfg.Registry != nil && cfg.Registry != prometheus.DefaultRegisterer {
		return newRegistry(cfg)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = metrics.DefaultNamespace
	}
	if cfg.Namespace == metrics.DefaultNamespace && len(cfg.Labels) == 0 {
		return metrics.Default(), nil
	}

	key := registryKey(cfg)
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if reg, ok := sharedRegistries[key]; ok {
		return reg, nil
	}
	cfg.Registry = prometheus.DefaultRegisterer
	reg, err := newRegistry(cfg)
	if err != nil {
		return nil, err
	}
	sharedRegistries[key] = reg
	return reg, nil
}

func registryKey(cfg metrics.Config) string {
	var sb strings.Builder
	sb.WriteString(cfg.Namespace)
	for _, k := range slices.Sorted(maps.Keys(cfg.Labels)) {
		sb.WriteString("," + k + "=" + cfg.Labels[k])
	}
	return sb.String()
}
