// Package render turns a page document into a live runtime view: it owns the
// per-view runtime state (open modals, global context, form values, table
// rows) and maps the component tree onto a renderable View tree.
package render

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/eventbus"
	"github.com/pagecraft/pagecraft/internal/page"
	"github.com/pagecraft/pagecraft/internal/runtime/action"
)

// Mode selects how unknown component types are rendered
type Mode string

const (
	// ModeDev renders an inline error for unknown component types
	ModeDev Mode = "dev"
	// ModeProduction silently skips unknown component types
	ModeProduction Mode = "production"
)

// Toast messages raised by the form submit path
const (
	MessageNoTable     = "No table name configured for this form"
	MessageSaved       = "Record saved successfully"
	MessageSaveFailed  = "Failed to save record"
	MessageActionError = "Action failed"
)

var (
	// ErrClosed is returned by operations on a closed session
	ErrClosed = errors.New("runtime session closed")
	// ErrNotFound is returned when a component id does not exist
	ErrNotFound = errors.New("component not found")
)

// DataSource reads and writes rows of the tables bound to Tables and Forms
type DataSource interface {
	Rows(ctx context.Context, table string) ([]page.Map, error)
	Insert(ctx context.Context, table string, record page.Map) (page.Map, error)
}

// Invalidator is implemented by data sources that cache rows
type Invalidator interface {
	Invalidate(ctx context.Context, table string) error
}

// EffectKind names a client-side effect produced by actions
type EffectKind string

const (
	EffectNavigate EffectKind = "navigate"
	EffectToast    EffectKind = "toast"
)

// Effect is something the client must do on behalf of the session
type Effect struct {
	Kind    EffectKind      `json:"kind"`
	URL     string          `json:"url,omitempty"`
	Level   page.ToastLevel `json:"level,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Config configures a Session
type Config struct {
	Document *page.Document
	// Globals seeds the expression context; typically user, params and searchParams
	Globals page.Map
	Data    DataSource
	// Bus is shared by every component of the session; a private bus is created when nil
	Bus    *eventbus.Bus
	Mode   Mode
	Logger *zap.Logger
}

type tableState struct {
	loaded bool
	rows   []page.Map
	err    error
}

// Session is the runtime context of one page view
type Session struct {
	doc    *page.Document
	data   DataSource
	bus    *eventbus.Bus
	exec   *action.Executor
	mode   Mode
	logger *zap.Logger

	mu          sync.Mutex
	globals     page.Map
	openModals  []string
	forms       map[string]page.Map
	tables      map[string]*tableState
	effects     []Effect
	unsubscribe []func()
	mounted     bool
	closed      bool
}

// NewSession creates a runtime session for a document
func NewSession(cfg Config) *Session {
	doc := cfg.Document
	if doc == nil {
		doc = page.NewDocument()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := cfg.Bus
	if bus == nil {
		bus = eventbus.New(logger)
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeDev
	}

	s := &Session{
		doc:     doc.Clone(),
		data:    cfg.Data,
		bus:     bus,
		mode:    mode,
		logger:  logger,
		globals: cfg.Globals.Clone(),
		forms:   make(map[string]page.Map),
		tables:  make(map[string]*tableState),
	}
	if s.globals == nil {
		s.globals = page.Map{}
	}
	s.exec = action.NewExecutor(action.Dependencies{
		Navigator: s,
		Notifier:  s,
		Modals:    s,
		Bus:       bus,
		Globals:   s.Globals,
		Logger:    logger,
	})
	return s
}

// Mount subscribes every Form and Table of the page to its bus topic
func (s *Session) Mount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounted || s.closed {
		return
	}
	s.mounted = true

	for _, id := range s.doc.IDs() {
		node := s.doc.Components[id]
		switch node.Type {
		case page.TypeForm:
			formID := id
			s.unsubscribe = append(s.unsubscribe, s.bus.Subscribe(eventbus.SubmitFormTopic(formID),
				eventbus.HandlerFunc(func(ctx context.Context, evt eventbus.Event) error {
					return s.SubmitForm(ctx, formID)
				})))
		case page.TypeTable:
			tableID := id
			s.unsubscribe = append(s.unsubscribe, s.bus.Subscribe(eventbus.RefreshTableTopic(tableID),
				eventbus.HandlerFunc(func(ctx context.Context, evt eventbus.Event) error {
					return s.RefreshTable(ctx, tableID)
				})))
		}
	}
}

// Close unmounts every component. Results of work still in flight are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.closed = true
	s.mu.Unlock()

	for _, cancel := range unsubscribe {
		cancel()
	}
}

// Closed reports whether the session was closed
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Document returns the page rendered by the session
func (s *Session) Document() *page.Document {
	return s.doc
}

// Globals returns a copy of the global expression context
func (s *Session) Globals() page.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globals.Clone()
}

// SetGlobal sets one key of the global expression context
func (s *Session) SetGlobal(key string, v page.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals[key] = v
}

// OpenModal implements action.Modals
func (s *Session) OpenModal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, open := range s.openModals {
		if open == id {
			return
		}
	}
	s.openModals = append(s.openModals, id)
}

// CloseModal implements action.Modals
func (s *Session) CloseModal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.openModals[:0]
	for _, open := range s.openModals {
		if open != id {
			out = append(out, open)
		}
	}
	s.openModals = out
}

// OpenModals returns the ids of the open modals in the order they were opened
func (s *Session) OpenModals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.openModals...)
}

func (s *Session) isOpen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, open := range s.openModals {
		if open == id {
			return true
		}
	}
	return false
}

// Navigate implements action.Navigator by queueing a client effect
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.effects = append(s.effects, Effect{Kind: EffectNavigate, URL: url})
	return nil
}

// Notify implements action.Notifier by queueing a client effect
func (s *Session) Notify(ctx context.Context, level page.ToastLevel, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.effects = append(s.effects, Effect{Kind: EffectToast, Level: level, Message: message})
}

// Effects returns and clears the queued client effects
func (s *Session) Effects() []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.effects
	s.effects = nil
	return out
}

// Click runs the onClick actions of a component. handled reports whether the
// component has actions, in which case the client must suppress its default
// behaviour.
func (s *Session) Click(ctx context.Context, id string) (handled bool, err error) {
	if s.Closed() {
		return false, ErrClosed
	}
	node, ok := s.doc.Components[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if len(node.Actions) == 0 {
		return false, nil
	}

	local := page.Map{}
	if formID := s.enclosingForm(id); formID != "" {
		local[action.LocalCurrentFormID] = page.String(formID)
	}
	if err := s.exec.Run(ctx, node.Actions, page.TriggerClick, local); err != nil {
		s.logger.Warn("click actions failed", zap.String("component", id), zap.Error(err))
		s.Notify(ctx, page.ToastError, MessageActionError)
		return true, err
	}
	return true, nil
}

// enclosingForm returns the id of the nearest Form ancestor of id
func (s *Session) enclosingForm(id string) string {
	seen := make(map[string]bool)
	for current := s.doc.Components[id]; current != nil && current.ParentID != ""; {
		if seen[current.ID] {
			return ""
		}
		seen[current.ID] = true
		parent := s.doc.Components[current.ParentID]
		if parent == nil {
			return ""
		}
		if parent.Type == page.TypeForm {
			return parent.ID
		}
		current = parent
	}
	return ""
}

// SetFieldValue records the value of one input of a form
func (s *Session) SetFieldValue(formID, name string, v page.Value) error {
	node, ok := s.doc.Components[formID]
	if !ok || node.Type != page.TypeForm {
		return fmt.Errorf("%w: form %s", ErrNotFound, formID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	values := s.forms[formID]
	if values == nil {
		values = page.Map{}
		s.forms[formID] = values
	}
	values[name] = v
	return nil
}

// FormValues returns a copy of the values entered into a form
func (s *Session) FormValues(formID string) page.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forms[formID].Clone()
}

// SubmitForm inserts the entered values into the form's table, reports the
// outcome with a toast, then runs the form's onSubmit actions. Failures are
// reported to the user and logged, not returned.
func (s *Session) SubmitForm(ctx context.Context, formID string) error {
	if s.Closed() {
		return ErrClosed
	}
	node, ok := s.doc.Components[formID]
	if !ok || node.Type != page.TypeForm {
		return fmt.Errorf("%w: form %s", ErrNotFound, formID)
	}

	props := s.resolve(node.Props)
	tableName := props.Get("tableName").StringOr("")
	if tableName == "" {
		s.Notify(ctx, page.ToastError, MessageNoTable)
		return nil
	}
	if s.data == nil {
		s.Notify(ctx, page.ToastError, MessageSaveFailed)
		return nil
	}

	values := s.FormValues(formID)
	if values == nil {
		values = page.Map{}
	}

	if _, err := s.data.Insert(ctx, tableName, values); err != nil {
		s.logger.Error("form insert failed",
			zap.String("form", formID),
			zap.String("table", tableName),
			zap.Error(err),
		)
		s.Notify(ctx, page.ToastError, MessageSaveFailed)
		return nil
	}
	s.Notify(ctx, page.ToastSuccess, MessageSaved)

	local := page.Map{
		action.LocalFormID:        page.String(formID),
		action.LocalCurrentFormID: page.String(formID),
		action.LocalFormData:      page.MapOf(values),
	}
	if err := s.exec.Run(ctx, node.Actions, page.TriggerSubmit, local); err != nil {
		s.logger.Error("form submit actions failed", zap.String("form", formID), zap.Error(err))
		s.Notify(ctx, page.ToastError, MessageSaveFailed)
	}
	return nil
}

// RefreshTable drops the cached rows of a table and loads them again
func (s *Session) RefreshTable(ctx context.Context, tableID string) error {
	node, ok := s.doc.Components[tableID]
	if !ok || node.Type != page.TypeTable {
		return fmt.Errorf("%w: table %s", ErrNotFound, tableID)
	}
	tableName := s.resolve(node.Props).Get("tableName").StringOr("")
	if inv, ok := s.data.(Invalidator); ok && tableName != "" {
		if err := inv.Invalidate(ctx, tableName); err != nil {
			s.logger.Warn("table cache invalidation failed", zap.String("table", tableName), zap.Error(err))
		}
	}
	s.mu.Lock()
	delete(s.tables, tableID)
	s.mu.Unlock()

	s.loadTable(ctx, tableID, tableName)
	return nil
}

// loadTable fetches rows for a table unless they are already loaded
func (s *Session) loadTable(ctx context.Context, tableID, tableName string) *tableState {
	s.mu.Lock()
	if st, ok := s.tables[tableID]; ok && st.loaded {
		s.mu.Unlock()
		return st
	}
	s.mu.Unlock()

	st := &tableState{loaded: true}
	if tableName != "" && s.data != nil {
		st.rows, st.err = s.data.Rows(ctx, tableName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// unmounted while loading
		return st
	}
	s.tables[tableID] = st
	return st
}

func (s *Session) resolve(m page.Map) page.Map {
	return resolveMap(m, s.Globals())
}
