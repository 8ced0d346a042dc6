package filter

import (
	"log/slog"
	"slices"

	"github.com/gevika/map-metagenome/internal/core/model"
	"github.com/gevika/map-metagenome/internal/depth"
)

// Snapshot is what a rendering surface receives after every recomputation.
type Snapshot struct {
	State   State
	Visible []bool
}

// Surface shows or hides on-screen markers. Visible is indexed like the
// engine's records and must not be retained past the call.
type Surface interface {
	Render(s Snapshot)
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(Snapshot)

func (f SurfaceFunc) Render(s Snapshot) { f(s) }

// Event is one UI or loader action applied to the engine.
type Event interface {
	apply(e *Engine)
	name() string
}

type RangeMoved struct {
	Low  float64
	High float64
}

type MinMoved struct{ Value float64 }

type MaxMoved struct{ Value float64 }

type MissingToggled struct{}

type UnknownToggled struct{}

type DatasetLoaded struct {
	Records []model.MarkerRecord
}

func (ev RangeMoved) apply(e *Engine)  { e.state = e.state.WithRange(ev.Low, ev.High) }
func (ev MinMoved) apply(e *Engine)    { e.state = e.state.WithMin(ev.Value) }
func (ev MaxMoved) apply(e *Engine)    { e.state = e.state.WithMax(ev.Value) }
func (MissingToggled) apply(e *Engine) { e.state = e.state.ToggleMissing() }
func (UnknownToggled) apply(e *Engine) { e.state = e.state.ToggleUnknown() }
func (ev DatasetLoaded) apply(e *Engine) {
	e.records = ev.Records
	e.state = Initial(depth.Extent(ev.Records))
	e.visible = make([]bool, len(ev.Records))
}

func (RangeMoved) name() string     { return "range_moved" }
func (MinMoved) name() string       { return "min_moved" }
func (MaxMoved) name() string       { return "max_moved" }
func (MissingToggled) name() string { return "missing_toggled" }
func (UnknownToggled) name() string { return "unknown_toggled" }
func (DatasetLoaded) name() string  { return "dataset_loaded" }

// Engine owns the filter state for one view. Every event recomputes the
// visibility of all records before Dispatch returns and before surfaces are
// notified, so no visibility is ever stale.
//
// An Engine is not safe for concurrent use; events are expected from a single
// goroutine, in order.
type Engine struct {
	records  []model.MarkerRecord
	state    State
	visible  []bool
	surfaces map[int]Surface
	nextID   int
	log      *slog.Logger
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an engine and applies DatasetLoaded for records.
func New(records []model.MarkerRecord, opts ...Option) *Engine {
	e := &Engine{surfaces: map[int]Surface{}}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = slog.New(slog.DiscardHandler)
	}
	e.Dispatch(DatasetLoaded{Records: records})
	return e
}

// Dispatch applies ev, recomputes every visibility, then notifies surfaces.
func (e *Engine) Dispatch(ev Event) {
	ev.apply(e)
	n := e.recompute()
	e.log.Debug("filter event applied",
		"event", ev.name(),
		"min_depth", e.state.MinDepth,
		"max_depth", e.state.MaxDepth,
		"show_missing", e.state.ShowMissing,
		"show_unknown", e.state.ShowUnknown,
		"visible", n,
		"total", len(e.records))
	e.notify()
}

func (e *Engine) Load(records []model.MarkerRecord) { e.Dispatch(DatasetLoaded{Records: records}) }
func (e *Engine) SetRange(lo, hi float64)           { e.Dispatch(RangeMoved{Low: lo, High: hi}) }
func (e *Engine) SetMin(v float64)                  { e.Dispatch(MinMoved{Value: v}) }
func (e *Engine) SetMax(v float64)                  { e.Dispatch(MaxMoved{Value: v}) }
func (e *Engine) ToggleMissing()                    { e.Dispatch(MissingToggled{}) }
func (e *Engine) ToggleUnknown()                    { e.Dispatch(UnknownToggled{}) }

// Subscribe registers s and immediately renders the current snapshot to it.
func (e *Engine) Subscribe(s Surface) (cancel func()) {
	id := e.nextID
	e.nextID++
	e.surfaces[id] = s
	s.Render(e.snapshot())
	return func() { delete(e.surfaces, id) }
}

func (e *Engine) State() State { return e.state }

// Visibility returns a copy of the per-record visibility.
func (e *Engine) Visibility() []bool { return slices.Clone(e.visible) }

func (e *Engine) VisibleCount() int {
	n := 0
	for _, v := range e.visible {
		if v {
			n++
		}
	}
	return n
}

func (e *Engine) Records() []model.MarkerRecord { return e.records }

func (e *Engine) recompute() int {
	n := 0
	for i, r := range e.records {
		v := Visible(r.Depth, e.state)
		e.visible[i] = v
		if v {
			n++
		}
	}
	return n
}

func (e *Engine) snapshot() Snapshot {
	return Snapshot{State: e.state, Visible: slices.Clone(e.visible)}
}

func (e *Engine) notify() {
	if len(e.surfaces) == 0 {
		return
	}
	ids := make([]int, 0, len(e.surfaces))
	for id := range e.surfaces {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		e.surfaces[id].Render(e.snapshot())
	}
}
