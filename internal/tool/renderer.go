package tool

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"toolhost/internal/sandbox"
	"toolhost/internal/stats"
	"toolhost/internal/store"
)

// RendererOptions tune the render pipeline.
type RendererOptions struct {
	// ScriptBudget bounds tool script execution in the isolate.
	ScriptBudget time.Duration
	Clock        clock.Clock
	Logger       *zap.Logger
}

// Renderer orchestrates the viewer path: resolve the definition, run the
// payload in a fresh isolate, compose the shell, and account the view.
type Renderer struct {
	resolver *Resolver
	counter  *stats.Counter
	clk      clock.Clock
	log      *zap.Logger
	budget   time.Duration
}

// Result is a composed, renderable tool page.
type Result struct {
	Def *Definition
	// Page is the full viewer document.
	Page []byte
	// Ready reports whether the isolate emitted its readiness signal.
	Ready bool
}

func NewRenderer(st store.Store, counter *stats.Counter, opts RendererOptions) *Renderer {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Renderer{
		resolver: NewResolver(st, opts.Logger),
		counter:  counter,
		clk:      opts.Clock,
		log:      opts.Logger,
		budget:   opts.ScriptBudget,
	}
}

// Render runs the full protocol for one tool id. Resolution failures
// propagate (the caller owns the error panel); isolate runtime failures are
// logged and absorbed, because a broken tool must not look like a broken
// host.
func (r *Renderer) Render(ctx context.Context, id string) (*Result, error) {
	def, err := r.resolver.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	// Fresh isolate per render; never reused across tool ids.
	iso, err := sandbox.New(id, r.log, r.budget)
	if err != nil {
		return nil, err
	}
	if runErr := iso.Run(def.HostedJS); runErr != nil {
		r.log.Warn("tool script error absorbed", zap.String("tool_id", id), zap.Error(runErr))
	}

	shell, err := ComposeShell(def)
	if err != nil {
		return nil, err
	}
	page, err := ComposeHost(def, shell)
	if err != nil {
		return nil, err
	}

	r.accountView(id)
	return &Result{Def: def, Page: page, Ready: iso.Ready()}, nil
}

// accountView records the view: monotone totals through the native atomic
// increment, last-view as a plain set.
func (r *Renderer) accountView(id string) {
	now := r.clk.Now()
	r.counter.Add(store.Join("tool_views", id, "total"), 1)
	r.counter.Set(store.Join("tool_views", id, "last_view"), now.UTC().Format(time.RFC3339Nano))
	r.counter.Add(store.Join("daily_views", stats.DateKey(now), id), 1)
}
