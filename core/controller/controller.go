// Package controller binds a model instance to a form and runs its actions.
//
// A Controller tracks one Status per action name. Unless an action is
// allowed to run concurrently, invoking it while a previous invocation is
// pending is a silent no-op: Action returns nil, nothing is emitted and the
// drop is only visible in logs and metrics.
//
// When an invocation settles the controller maps the outcome onto the form
// through its ErrorMapper, then publishes an event named after the action
// (success) or events.ActionError (failure).
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/modelform/adapters/clock"
	"github.com/artpar/modelform/adapters/idgen"
	"github.com/artpar/modelform/core/events"
	"github.com/artpar/modelform/core/form"
	"github.com/artpar/modelform/core/models"
	"github.com/artpar/modelform/core/rules"
	"github.com/artpar/modelform/core/schema"
	"github.com/artpar/modelform/core/validation"
	"github.com/artpar/modelform/ports"
)

var (
	// ErrNoModel is returned when the controller has not been initialized.
	ErrNoModel = errors.New("controller has no model")

	// ErrUnknownAction rejects invocations of actions the model lacks.
	ErrUnknownAction = models.ErrUnknownAction
)

// ErrorMapper translates action outcomes into form validity.
type ErrorMapper interface {
	Success(f form.Form, action string) func(any) any
	Failure(f form.Form, action string) func(error) error
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	Logger  zerolog.Logger
	Metrics ports.ActionMetrics
	IDs     ports.IDGenerator
	Clock   ports.Clock

	// Bus, if set, receives every event in addition to the controller's own
	// subscribers.
	Bus *events.Bus

	// Timeout bounds each action invocation. Zero means no limit.
	Timeout time.Duration
}

// Controller runs model actions on behalf of one form.
type Controller struct {
	registry *models.Registry
	mapper   ErrorMapper

	logger  zerolog.Logger
	metrics ports.ActionMetrics
	ids     ports.IDGenerator
	clock   ports.Clock
	timeout time.Duration

	bus     *events.Bus
	forward *events.Bus

	mu              sync.Mutex
	form            form.Form
	model           *models.Instance
	allowConcurrent map[string]bool
	status          map[string]*Status
}

// New creates a controller. registry resolves model names and may be nil
// when only instances are passed to Init. mapper may be nil.
func New(registry *models.Registry, mapper ErrorMapper, opts Options) *Controller {
	c := &Controller{
		registry:        registry,
		mapper:          mapper,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		ids:             opts.IDs,
		clock:           opts.Clock,
		timeout:         opts.Timeout,
		forward:         opts.Bus,
		allowConcurrent: make(map[string]bool),
		status:          make(map[string]*Status),
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}
	if c.ids == nil {
		c.ids = idgen.UUID{}
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	c.bus = events.NewBus(c.logger)
	return c
}

// Init binds the controller to f and a model. nameOrModel is a registered
// model name, a *models.Model or a *models.Instance.
// Actions listed in allowConcurrent may overlap.
func (c *Controller) Init(f form.Form, nameOrModel any, allowConcurrent []string) error {
	inst, err := c.resolve(nameOrModel)
	if err != nil {
		return err
	}

	allowed := make(map[string]bool, len(allowConcurrent))
	for _, action := range allowConcurrent {
		if action != "" {
			allowed[action] = true
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.form = f
	c.model = inst
	c.allowConcurrent = allowed
	return nil
}

// Reset marks the form pristine and rebinds to nameOrModel. Action statuses
// are kept.
func (c *Controller) Reset(nameOrModel any) error {
	c.mu.Lock()
	f := c.form
	c.mu.Unlock()
	if f == nil {
		return ErrNoModel
	}

	f.SetPristine()

	inst, err := c.resolve(nameOrModel)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.model = inst
	c.mu.Unlock()
	return nil
}

func (c *Controller) resolve(nameOrModel any) (*models.Instance, error) {
	switch v := nameOrModel.(type) {
	case string:
		if c.registry == nil {
			return nil, fmt.Errorf("resolve model %s: no registry", v)
		}
		m, err := c.registry.Get(v)
		if err != nil {
			return nil, fmt.Errorf("resolve model: %w", err)
		}
		return m.New(nil), nil
	case *models.Model:
		return v.New(nil), nil
	case *models.Instance:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported model %T", nameOrModel)
	}
}

// Model returns the bound instance.
func (c *Controller) Model() *models.Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Form returns the bound form.
func (c *Controller) Form() form.Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

// Ready reports whether no invocation of action is pending.
func (c *Controller) Ready(action string) bool {
	c.mu.Lock()
	s := c.status[action]
	c.mu.Unlock()
	return s == nil || !s.Loading()
}

// Status returns the latest invocation of action, or nil.
func (c *Controller) Status(action string) *Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status[action]
}

// On subscribes h to events emitted by this controller.
// See events.Bus.Subscribe for the supported patterns.
func (c *Controller) On(event string, h events.Handler) {
	c.bus.Subscribe(event, h)
}

// Action invokes action on the bound model and returns its status.
// It returns nil, without emitting anything, when the action is not allowed
// to run concurrently and a previous invocation is still pending.
//
// The action runs in its own goroutine and is not cancelled with ctx.
func (c *Controller) Action(ctx context.Context, action string, opts models.Options) *Status {
	c.mu.Lock()
	inst := c.model
	f := c.form
	model := modelName(inst)

	if !c.allowConcurrent[action] {
		if prev := c.status[action]; prev != nil && prev.Loading() {
			c.mu.Unlock()
			c.logger.Debug().
				Str("model", model).
				Str("action", action).
				Str("pending", prev.ID).
				Msg("duplicate action dropped")
			c.metrics.ActionDropped(model, action)
			return nil
		}
	}

	st := newStatus(c.ids.New(), model, action, c.clock.Now())
	if err := st.start(); err != nil {
		c.logger.Error().Err(err).Str("invocation", st.ID).Msg("status transition failed")
	}
	c.status[action] = st
	c.mu.Unlock()

	c.metrics.ActionStarted(model, action)
	go c.run(context.WithoutCancel(ctx), st, inst, f, opts)
	return st
}

func (c *Controller) run(ctx context.Context, st *Status, inst *models.Instance, f form.Form, opts models.Options) {
	defer st.finish()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result, err := c.invoke(ctx, inst, st.Action, opts)

	if c.mapper != nil && f != nil {
		if err != nil {
			err = c.mapper.Failure(f, st.Action)(err)
		} else {
			result = c.mapper.Success(f, st.Action)(result)
		}
	}

	settledAt := c.clock.Now()
	if serr := st.settle(result, err, settledAt); serr != nil {
		c.logger.Error().Err(serr).Str("invocation", st.ID).Msg("status transition failed")
	}

	outcome := ports.OutcomeFulfilled
	if err != nil {
		outcome = ports.OutcomeRejected
	}
	c.metrics.ActionFinished(st.Model, st.Action, outcome, settledAt.Sub(st.StartedAt))

	event := events.Event{
		Model:      st.Model,
		Action:     st.Action,
		Invocation: st.ID,
		Time:       settledAt,
	}
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("model", st.Model).
			Str("action", st.Action).
			Str("invocation", st.ID).
			Msg("action failed")
		event.Name = events.ActionError
		event.Err = err
	} else {
		event.Name = st.Action
		event.Result = result
	}

	c.bus.Publish(ctx, event)
	if c.forward != nil {
		c.forward.Publish(ctx, event)
	}
}

func (c *Controller) invoke(ctx context.Context, inst *models.Instance, action string, opts models.Options) (result any, err error) {
	if inst == nil {
		return nil, ErrNoModel
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %s panicked: %v", action, r)
		}
	}()
	return inst.Do(ctx, action, opts)
}

// AddValidator appends v to field's parser pipeline. Each parsed value is
// validated against the controller's current model and the rule outcomes are
// set on the field. A required field whose view value is empty is marked
// invalid immediately.
func (c *Controller) AddValidator(field form.Field, v *validation.Validator) {
	if field == nil || v == nil {
		return
	}

	report := func(rule string, valid bool) {
		field.SetValidity(rule, valid)
		if !valid {
			c.metrics.ValidationFailed(v.Field, rule)
		}
	}
	field.AddParser(func(value any) any {
		return v.Validate(value, c.context(), report)
	})

	if v.Required && field.IsEmpty(field.ViewValue()) {
		field.SetValidity(rules.Required, false)
	}
}

// Bind attaches validators to every field of f, including fields added to f
// later. A nil validators binds the bound model's validators.
func (c *Controller) Bind(f form.Form, validators validation.Validators) error {
	if validators == nil {
		inst := c.Model()
		if inst == nil {
			return ErrNoModel
		}
		validators = inst.Model().Validators
	}

	for _, field := range f.Fields() {
		c.AddValidator(field, validators[field.Name()])
	}
	f.OnFieldAdded(func(field form.Field) {
		c.AddValidator(field, validators[field.Name()])
	})
	return nil
}

// BindField compiles attr into a validator for field alone and attaches it.
// Custom types of the bound model's schema are available to attr.
func (c *Controller) BindField(field form.Field, attr schema.Attribute) *validation.Validator {
	var types schema.Types
	if inst := c.Model(); inst != nil {
		types = inst.Model().Schema.Types
	}

	v := validation.Compile(schema.Attributes{field.Name(): attr}, types)[field.Name()]
	c.AddValidator(field, v)
	return v
}

// context returns the model dynamic rules resolve against.
func (c *Controller) context() schema.Context {
	inst := c.Model()
	if inst == nil {
		return nil
	}
	return inst
}

func modelName(inst *models.Instance) string {
	if inst == nil || inst.Model() == nil {
		return ""
	}
	return inst.Model().Name
}

type nopMetrics struct{}

func (nopMetrics) ActionStarted(string, string)                        {}
func (nopMetrics) ActionFinished(string, string, string, time.Duration) {}
func (nopMetrics) ActionDropped(string, string)                        {}
func (nopMetrics) ValidationFailed(string, string)                     {}
