package page

import "fmt"

// ToastLevel is the severity of a toast notification
type ToastLevel string

const (
	ToastSuccess ToastLevel = "success"
	ToastError   ToastLevel = "error"
	ToastInfo    ToastLevel = "info"
)

// Valid reports whether l is a known toast level
func (l ToastLevel) Valid() bool {
	return l == ToastSuccess || l == ToastError || l == ToastInfo
}

// Payload keys per action kind
const (
	PayloadModalID = "modalId"
	PayloadURL     = "url"
	PayloadLevel   = "type"
	PayloadMessage = "message"
	PayloadFormID  = "formId"
	PayloadTableID = "tableId"
)

// ModalPayload is the payload of OPEN_MODAL and CLOSE_MODAL
type ModalPayload struct {
	ModalID string
}

// NavigatePayload is the payload of NAVIGATE
type NavigatePayload struct {
	URL string
}

// ToastPayload is the payload of SHOW_TOAST
type ToastPayload struct {
	Level   ToastLevel
	Message string
}

// FormPayload is the payload of SUBMIT_FORM. FormID may be empty.
type FormPayload struct {
	FormID string
}

// TablePayload is the payload of REFRESH_TABLE. TableID may be empty.
type TablePayload struct {
	TableID string
}

func (a ActionConfig) Modal() ModalPayload {
	return ModalPayload{ModalID: a.Payload.Get(PayloadModalID).StringOr("")}
}

func (a ActionConfig) Navigate() NavigatePayload {
	return NavigatePayload{URL: a.Payload.Get(PayloadURL).StringOr("")}
}

func (a ActionConfig) Toast() ToastPayload {
	level := ToastLevel(a.Payload.Get(PayloadLevel).StringOr(string(ToastInfo)))
	if !level.Valid() {
		level = ToastInfo
	}
	return ToastPayload{Level: level, Message: a.Payload.Get(PayloadMessage).Text()}
}

func (a ActionConfig) Form() FormPayload {
	return FormPayload{FormID: a.Payload.Get(PayloadFormID).StringOr("")}
}

func (a ActionConfig) Table() TablePayload {
	return TablePayload{TableID: a.Payload.Get(PayloadTableID).StringOr("")}
}

// payloadStringKeys lists the keys each action kind reads as strings
var payloadStringKeys = map[ActionKind][]string{
	ActionOpenModal:    {PayloadModalID},
	ActionCloseModal:   {PayloadModalID},
	ActionNavigate:     {PayloadURL},
	ActionShowToast:    {PayloadLevel, PayloadMessage},
	ActionSubmitForm:   {PayloadFormID},
	ActionRefreshTable: {PayloadTableID},
}

// Validate checks the trigger, the kind and the payload shape of an action.
// Payload keys may be absent while an action is still being configured, but
// present keys must have the type their kind expects.
func (a ActionConfig) Validate() error {
	if a.Trigger != TriggerClick && a.Trigger != TriggerSubmit {
		return fmt.Errorf("unknown trigger %q", a.Trigger)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	for _, key := range payloadStringKeys[a.Type] {
		v := a.Payload.Get(key)
		if v.IsNil() {
			continue
		}
		if _, ok := v.AsString(); !ok {
			return fmt.Errorf("%s payload %q must be a string, got %s", a.Type, key, v.Kind())
		}
	}
	if a.Type == ActionShowToast {
		if level, ok := a.Payload.Get(PayloadLevel).AsString(); ok && !ToastLevel(level).Valid() {
			return fmt.Errorf("unknown toast type %q", level)
		}
	}
	return nil
}
