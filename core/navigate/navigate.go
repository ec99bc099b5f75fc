// Package navigate moves a Location in response to controller events.
//
// Routes map an event name to a target. A target starting with "/" is a
// literal path; anything else is an expression evaluated with the event
// result bound to res, e.g. `"/users/" + res.id`. Empty results leave the
// location unchanged.
package navigate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/artpar/modelform/core/events"
)

// Location is the navigation target.
type Location interface {
	SetPath(path string)
}

// Subscriber is implemented by controllers.
type Subscriber interface {
	On(event string, h events.Handler)
}

// Navigator subscribes routes and applies them to a Location.
type Navigator struct {
	loc    Location
	logger zerolog.Logger
}

// New creates a navigator for loc.
func New(loc Location, logger zerolog.Logger) *Navigator {
	return &Navigator{loc: loc, logger: logger}
}

// Register compiles every route and subscribes it on sub. Nothing is
// subscribed when any expression fails to compile.
func (n *Navigator) Register(sub Subscriber, routes map[string]string) error {
	names := make([]string, 0, len(routes))
	for name := range routes {
		names = append(names, name)
	}
	sort.Strings(names)

	handlers := make(map[string]events.Handler, len(routes))
	for _, name := range names {
		h, err := n.route(name, routes[name])
		if err != nil {
			return err
		}
		handlers[name] = h
	}

	for _, name := range names {
		sub.On(name, handlers[name])
	}
	return nil
}

func (n *Navigator) route(event, target string) (events.Handler, error) {
	if strings.HasPrefix(target, "/") {
		return func(ctx context.Context, e events.Event) error {
			n.navigate(e, target)
			return nil
		}, nil
	}

	program, err := expr.Compile(target, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("route %s: compile %q: %w", event, target, err)
	}

	return func(ctx context.Context, e events.Event) error {
		path, err := eval(program, e)
		if err != nil {
			return fmt.Errorf("route %s: %w", event, err)
		}
		n.navigate(e, path)
		return nil
	}, nil
}

func (n *Navigator) navigate(e events.Event, path string) {
	if path == "" {
		return
	}
	n.logger.Debug().
		Str("event", e.Name).
		Str("action", e.Action).
		Str("path", path).
		Msg("navigating")
	n.loc.SetPath(path)
}

func eval(program *vm.Program, e events.Event) (string, error) {
	out, err := expr.Run(program, map[string]any{
		"res":    e.Result,
		"err":    e.Err,
		"action": e.Action,
	})
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	s, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("expression returned %T, want string", out)
	}
	return s, nil
}

// Recorder is a Location that remembers every path it was sent to.
type Recorder struct {
	mu    sync.Mutex
	paths []string
}

// SetPath records path.
func (r *Recorder) SetPath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

// Path returns the most recent path, or "".
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.paths) == 0 {
		return ""
	}
	return r.paths[len(r.paths)-1]
}

// Paths returns every recorded path in order.
func (r *Recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}
