package poll

import (
	"context"

	"github.com/jbweber/qubeforge/internal/qubes"
)

// StateSource is the part of the control surface the qube waits need.
type StateSource interface {
	IsRunning(ctx context.Context, name string) (bool, error)
	GetFeature(ctx context.Context, name, key string) (string, bool, error)
}

// Running holds while the qube is running.
func Running(s StateSource, name string) Predicate {
	return func(ctx context.Context) (bool, error) {
		return s.IsRunning(ctx, name)
	}
}

// Marker is a qvm-features entry the guest sets once it is ready.
type Marker struct {
	Feature string
	Value   string
}

// Matches reports whether a feature lookup result shows the marker.
func (m Marker) Matches(value string, ok bool) bool {
	return ok && value == m.Value
}

func (m Marker) String() string {
	return m.Feature + "=" + m.Value
}

// Marked holds once the qube's readiness marker feature has the marker's
// value.
func Marked(s StateSource, name string, marker Marker) Predicate {
	return func(ctx context.Context) (bool, error) {
		v, ok, err := s.GetFeature(ctx, name, marker.Feature)
		if err != nil {
			return false, err
		}
		return marker.Matches(v, ok), nil
	}
}

// RunningUntilMarked waits for the qube to come up and then for it either
// to stop or to show its readiness marker.
//
// Some phases never power the qube off once the guest agent is installed,
// which is why the marker also ends the wait. The first wait matters
// because a qube that boots and halts quickly could otherwise be seen as
// "not running" before it ever started.
func (p *Poller) RunningUntilMarked(ctx context.Context, s StateSource, name string, marker Marker) error {
	return p.WaitForEdge(ctx, name+" phase",
		Running(s, name),
		Any(Not(Running(s, name)), Marked(s, name, marker)),
	)
}

// MarkerPresent waits until the qube's readiness marker is set.
func (p *Poller) MarkerPresent(ctx context.Context, s StateSource, name string, marker Marker) error {
	return p.AwaitState(ctx, name+" readiness marker", Marked(s, name, marker))
}

// AppMenuSyncSource is the part of the control surface the app menu wait
// needs.
type AppMenuSyncSource interface {
	AppMenuSyncRunning(ctx context.Context, name string) (bool, error)
}

// AppMenuSync waits for dom0's app menu synchronization of the qube to start
// and then to finish.
func (p *Poller) AppMenuSync(ctx context.Context, s AppMenuSyncSource, name string) error {
	syncing := func(ctx context.Context) (bool, error) {
		return s.AppMenuSyncRunning(ctx, name)
	}
	return p.WaitForEdge(ctx, name+" app menu sync", syncing, Not(syncing))
}

var _ StateSource = qubes.Surface(nil)
var _ AppMenuSyncSource = qubes.Surface(nil)
