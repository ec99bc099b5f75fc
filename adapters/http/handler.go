// Package http exposes registered models over HTTP.
//
// Every request gets its own form and controller: submitted attributes are
// bound to the model's validators, and actions run through the controller so
// that resource errors are mapped back onto the same fields.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/artpar/modelform/adapters/memory"
	"github.com/artpar/modelform/adapters/sqlite"
	"github.com/artpar/modelform/core/controller"
	"github.com/artpar/modelform/core/errormap"
	"github.com/artpar/modelform/core/events"
	"github.com/artpar/modelform/core/form"
	"github.com/artpar/modelform/core/models"
	"github.com/artpar/modelform/core/navigate"
	"github.com/artpar/modelform/pkg/jsonapi"
	"github.com/artpar/modelform/ports"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Request is the body accepted by the validate and action endpoints.
type Request struct {
	Data struct {
		ID         string         `json:"id,omitempty"`
		Attributes map[string]any `json:"attributes"`
	} `json:"data"`
	Meta struct {
		// Options are passed to the action unchanged.
		Options map[string]any `json:"options,omitempty"`

		// Navigate maps event names to navigation targets. The resulting
		// location is returned in the response meta.
		Navigate map[string]string `json:"navigate,omitempty"`
	} `json:"meta"`
}

// FormSettings are the reloadable controller settings.
type FormSettings struct {
	AllowConcurrent []string
	ActionTimeout   time.Duration
}

// ModelHandler serves the model endpoints.
type ModelHandler struct {
	registry *models.Registry
	mapper   *errormap.Mapper
	logger   zerolog.Logger
	metrics  ports.ActionMetrics
	bus      *events.Bus

	mu       sync.RWMutex
	settings FormSettings
}

// NewModelHandler creates a handler for the models in registry.
// metrics and bus may be nil.
func NewModelHandler(registry *models.Registry, logger zerolog.Logger, metrics ports.ActionMetrics, bus *events.Bus) *ModelHandler {
	return &ModelHandler{
		registry: registry,
		mapper:   errormap.NewMapper(logger),
		logger:   logger,
		metrics:  metrics,
		bus:      bus,
	}
}

// SetFormSettings replaces the controller settings used by later requests.
func (h *ModelHandler) SetFormSettings(s FormSettings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings = FormSettings{
		AllowConcurrent: append([]string(nil), s.AllowConcurrent...),
		ActionTimeout:   s.ActionTimeout,
	}
}

func (h *ModelHandler) formSettings() FormSettings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings
}

// Routes mounts the model endpoints on r.
func (h *ModelHandler) Routes(r chi.Router) {
	r.Get("/models", h.List)
	r.Route("/models/{name}", func(r chi.Router) {
		r.Get("/schema", h.Schema)
		r.Post("/validate", h.Validate)
		r.Post("/actions/{action}", h.Action)
	})
}

// List returns every registered model with its attributes and actions.
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	var resources []jsonapi.Resource
	for _, name := range h.registry.Names() {
		m, err := h.registry.Get(name)
		if err != nil {
			h.logger.Warn().Err(err).Str("model", name).Msg("skipping unresolvable model")
			continue
		}
		resources = append(resources, jsonapi.Resource{
			Type: "model",
			ID:   name,
			Attributes: map[string]any{
				"attributes": m.Schema.Attributes.Names(),
				"actions":    actionNames(m),
			},
		})
	}
	jsonapi.WriteCollection(w, http.StatusOK, resources)
}

// Schema returns the declared attributes and custom types of one model.
func (h *ModelHandler) Schema(w http.ResponseWriter, r *http.Request) {
	m, ok := h.model(w, r)
	if !ok {
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, jsonapi.Resource{
		Type: "schema",
		ID:   m.Name,
		Attributes: map[string]any{
			"attributes": m.Schema.Attributes,
			"types":      m.Schema.Types,
		},
	})
}

// Validate checks submitted attributes without running any action.
func (h *ModelHandler) Validate(w http.ResponseWriter, r *http.Request) {
	m, ok := h.model(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	sub, err := h.submit(m, req)
	if err != nil {
		h.logger.Error().Err(err).Str("model", m.Name).Msg("bind form")
		jsonapi.WriteInternalError(w, err.Error())
		return
	}
	defer h.mapper.Forget(sub.form)

	if errs := validationErrors(sub.form); len(errs) > 0 {
		jsonapi.WriteError(w, errs...)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, jsonapi.NewResource(m.Name, sub.form.Values()))
}

// Action validates submitted attributes and, when they are valid, runs the
// named action and waits for it to settle.
func (h *ModelHandler) Action(w http.ResponseWriter, r *http.Request) {
	m, ok := h.model(w, r)
	if !ok {
		return
	}
	action := chi.URLParam(r, "action")
	if _, exists := m.Resource.Actions[action]; !exists {
		jsonapi.WriteNotFound(w, "action", action)
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	sub, err := h.submit(m, req)
	if err != nil {
		h.logger.Error().Err(err).Str("model", m.Name).Msg("bind form")
		jsonapi.WriteInternalError(w, err.Error())
		return
	}
	// An unsettled action may still map errors onto the form after the
	// response is written, so it forgets the form itself once done.
	forget := true
	defer func() {
		if forget {
			h.mapper.Forget(sub.form)
		}
	}()

	if errs := validationErrors(sub.form); len(errs) > 0 {
		jsonapi.WriteError(w, errs...)
		return
	}

	loc := &navigate.Recorder{}
	if len(req.Meta.Navigate) > 0 {
		if err := navigate.New(loc, h.logger).Register(sub.ctrl, req.Meta.Navigate); err != nil {
			jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "invalid_navigation", "Bad Request").
				Detail(err.Error()).
				Pointer("/meta/navigate").
				Build())
			return
		}
	}

	// Only attributes the client sent overwrite defaults.
	parsed := sub.form.Values()
	for name := range parsed {
		if _, sent := req.Data.Attributes[name]; !sent {
			delete(parsed, name)
		}
	}
	sub.inst.Merge(parsed)

	st := sub.ctrl.Action(r.Context(), action, models.Options(req.Meta.Options))
	if st == nil {
		// A fresh controller has nothing pending, so this means a bug.
		jsonapi.WriteInternalError(w, "action was not started")
		return
	}

	if _, err := st.Wait(r.Context()); err != nil && !done(st) {
		forget = false
		go func() {
			<-st.Done()
			h.mapper.Forget(sub.form)
		}()
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusGatewayTimeout, "action_pending", "Gateway Timeout").
			Detailf("action %s did not settle: %v", action, err).
			Meta("invocation", st.ID).
			Build())
		return
	}
	result, err := st.Result()
	if err != nil {
		h.writeActionError(w, m.Name, action, err)
		return
	}

	doc := jsonapi.NewDocument().
		Meta("invocation", st.ID).
		Meta("state", st.State())
	if p := loc.Path(); p != "" {
		doc.Meta("location", p)
	}
	if values, ok := result.(map[string]any); ok {
		doc.DataResource(jsonapi.NewResource(m.Name, values))
	} else if result != nil {
		doc.Meta("result", result)
	}
	jsonapi.WriteDocument(w, http.StatusOK, doc.Build())
}

func (h *ModelHandler) writeActionError(w http.ResponseWriter, model, action string, err error) {
	if fes := errormap.Extract(err); len(fes) > 0 {
		conflict := true
		for _, fe := range fes {
			if fe.Rule != "unique" {
				conflict = false
				break
			}
		}
		errs := make([]jsonapi.Error, len(fes))
		for i, fe := range fes {
			rule := fe.Rule
			if rule == "" {
				rule = errormap.RuleServer
			}
			if conflict {
				errs[i] = jsonapi.ErrFieldConflict(fe.Field, rule, fe.Message)
			} else {
				errs[i] = jsonapi.ErrField(fe.Field, rule, fe.Message)
			}
		}
		jsonapi.WriteError(w, errs...)
		return
	}

	switch {
	case errors.Is(err, sqlite.ErrNotFound), errors.Is(err, memory.ErrNotFound):
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusNotFound, "not_found", "Not Found").
			Detail(err.Error()).
			Build())
	case errors.Is(err, models.ErrUnknownAction):
		jsonapi.WriteNotFound(w, "action", action)
	default:
		h.logger.Error().Err(err).Str("model", model).Str("action", action).Msg("action failed")
		jsonapi.WriteInternalError(w, err.Error())
	}
}

// submission is one request's form bound to a fresh model instance.
type submission struct {
	form *form.Set
	inst *models.Instance
	ctrl *controller.Controller
}

// submit binds the submitted attributes to a new form. Every attribute of
// the model gets a control so that missing required values are reported.
// The controls are then edited once to run their validators.
func (h *ModelHandler) submit(m *models.Model, req Request) (*submission, error) {
	values := make(map[string]any, len(m.Validators)+len(req.Data.Attributes))
	for _, name := range m.Validators.Names() {
		values[name] = nil
	}
	for name, v := range req.Data.Attributes {
		values[name] = v
	}

	f := form.FromValues(values)
	inst := m.New(req.Data.Attributes)
	if req.Data.ID != "" {
		inst.Set(sqlite.IDField, req.Data.ID)
		// Defaults apply to new records only.
		for name := range m.Schema.Attributes.Defaults() {
			if _, sent := req.Data.Attributes[name]; !sent {
				inst.Unset(name)
			}
		}
	}

	settings := h.formSettings()
	opts := controller.Options{
		Logger:  h.logger,
		Metrics: h.metrics,
		Bus:     h.bus,
		Timeout: settings.ActionTimeout,
	}
	ctrl := controller.New(h.registry, h.mapper, opts)
	if err := ctrl.Init(f, inst, settings.AllowConcurrent); err != nil {
		return nil, fmt.Errorf("init controller: %w", err)
	}
	if err := ctrl.Bind(f, nil); err != nil {
		return nil, fmt.Errorf("bind validators: %w", err)
	}

	for _, field := range f.Fields() {
		c := field.(*form.Control)
		c.SetViewValue(c.ViewValue())
	}
	return &submission{form: f, inst: inst, ctrl: ctrl}, nil
}

func (h *ModelHandler) model(w http.ResponseWriter, r *http.Request) (*models.Model, bool) {
	name := chi.URLParam(r, "name")
	m, err := h.registry.Get(name)
	if err != nil {
		var cfgErr *models.ConfigError
		if errors.As(err, &cfgErr) {
			h.logger.Error().Err(err).Str("model", name).Msg("model misconfigured")
			jsonapi.WriteInternalError(w, err.Error())
			return nil, false
		}
		jsonapi.WriteNotFound(w, "model", name)
		return nil, false
	}
	return m, true
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (Request, bool) {
	var req Request
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		jsonapi.WriteBadRequest(w, "failed to read request body")
		return req, false
	}
	if len(body) == 0 {
		return req, true
	}
	if err := json.Unmarshal(body, &req); err != nil {
		jsonapi.WriteBadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return req, false
	}
	return req, true
}

// validationErrors lists every invalid rule in field order.
func validationErrors(f *form.Set) []jsonapi.Error {
	byField := f.Errors()
	fields := make([]string, 0, len(byField))
	for name := range byField {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var out []jsonapi.Error
	for _, name := range fields {
		for _, rule := range byField[name] {
			out = append(out, jsonapi.ErrField(name, rule, ""))
		}
	}
	return out
}

func done(st *controller.Status) bool {
	select {
	case <-st.Done():
		return true
	default:
		return false
	}
}

func actionNames(m *models.Model) []string {
	names := make([]string, 0, len(m.Resource.Actions))
	for name := range m.Resource.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthHandler reports liveness and database readiness.
type HealthHandler struct {
	db Pinger
}

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewHealthHandler creates a health handler. db may be nil.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readiness checks if the database answers.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
