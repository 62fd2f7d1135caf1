// Package action executes the declarative actions attached to page components.
package action

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/eventbus"
	"github.com/pagecraft/pagecraft/internal/page"
	"github.com/pagecraft/pagecraft/internal/runtime/expr"
)

// Local context keys understood by the executor
const (
	LocalCurrentFormID = "currentFormId"
	LocalFormID        = "formId"
	LocalFormData      = "formData"
)

// MessageNoForm is shown when SUBMIT_FORM cannot determine its target
const MessageNoForm = "Cannot submit form: No form specified"

// Navigator changes the page shown to the user
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Notifier shows toast notifications
type Notifier interface {
	Notify(ctx context.Context, level page.ToastLevel, message string)
}

// Modals opens and closes modal components
type Modals interface {
	OpenModal(id string)
	CloseModal(id string)
}

// Publisher broadcasts events to mounted components
type Publisher interface {
	Publish(ctx context.Context, evt eventbus.Event) int
}

// Dependencies are the collaborators an Executor drives
type Dependencies struct {
	Navigator Navigator
	Notifier  Notifier
	Modals    Modals
	Bus       Publisher
	// Globals returns the page-wide expression context (user, params, ...)
	Globals func() page.Map
	Logger  *zap.Logger
}

// Executor runs actions against a set of collaborators
type Executor struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewExecutor creates an executor
func NewExecutor(deps Dependencies) *Executor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{deps: deps, logger: logger}
}

// Run executes the actions bound to trigger one after another, in order. The
// first failing action stops the chain.
func (e *Executor) Run(ctx context.Context, actions []page.ActionConfig, trigger page.Trigger, local page.Map) error {
	for i, a := range actions {
		if a.Trigger != trigger {
			continue
		}
		if err := e.Execute(ctx, a, local); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, a.Type, err)
		}
	}
	return nil
}

// Execute performs one action. The expression context is the page globals
// overlaid by local.
func (e *Executor) Execute(ctx context.Context, a page.ActionConfig, local page.Map) error {
	scope := e.scope(local)
	e.logger.Debug("executing action", zap.String("type", string(a.Type)))

	switch a.Type {
	case page.ActionNavigate:
		url := a.Navigate().URL
		if url == "" {
			return nil
		}
		resolved := expr.ResolveString(url, scope).Text()
		if e.deps.Navigator == nil {
			return nil
		}
		return e.deps.Navigator.Navigate(ctx, resolved)

	case page.ActionShowToast:
		toast := a.Toast()
		e.notify(ctx, toast.Level, expr.ResolveString(toast.Message, scope).Text())
		return nil

	case page.ActionOpenModal:
		if id := a.Modal().ModalID; id != "" && e.deps.Modals != nil {
			e.deps.Modals.OpenModal(id)
		}
		return nil

	case page.ActionCloseModal:
		if id := a.Modal().ModalID; id != "" && e.deps.Modals != nil {
			e.deps.Modals.CloseModal(id)
		}
		return nil

	case page.ActionSubmitForm:
		formID := a.Form().FormID
		if formID == "" {
			formID = local.Get(LocalCurrentFormID).StringOr("")
		}
		if formID == "" {
			formID = local.Get(LocalFormID).StringOr("")
		}
		if formID == "" {
			e.logger.Warn("SUBMIT_FORM without formId outside of a form")
			e.notify(ctx, page.ToastError, MessageNoForm)
			return nil
		}
		e.publish(ctx, eventbus.SubmitForm{FormID: formID})
		return nil

	case page.ActionRefreshTable:
		if id := a.Table().TableID; id != "" {
			e.publish(ctx, eventbus.RefreshTable{TableID: id})
		}
		return nil

	default:
		e.logger.Warn("unknown action type", zap.String("type", string(a.Type)))
		return nil
	}
}

func (e *Executor) scope(local page.Map) page.Map {
	var globals page.Map
	if e.deps.Globals != nil {
		globals = e.deps.Globals()
	}
	return globals.Merge(local)
}

func (e *Executor) notify(ctx context.Context, level page.ToastLevel, message string) {
	if e.deps.Notifier != nil {
		e.deps.Notifier.Notify(ctx, level, message)
	}
}

func (e *Executor) publish(ctx context.Context, evt eventbus.Event) {
	if e.deps.Bus == nil {
		return
	}
	if n := e.deps.Bus.Publish(ctx, evt); n == 0 {
		e.logger.Debug("action event had no listener", zap.String("topic", evt.Topic()))
	}
}
