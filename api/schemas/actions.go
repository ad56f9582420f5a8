package schemas

import "fmt"

// ActionKind enumerates the primitive actions the local executor can take
// against the environment. The vocabulary matches the id-based action DSL
// the model is prompted with (`click [7]`, `type [3] [text] [1]`, ...).
type ActionKind string

const (
	ActionClick     ActionKind = "click"
	ActionTypeText  ActionKind = "type"
	ActionHover     ActionKind = "hover"
	ActionPress     ActionKind = "press"
	ActionScroll    ActionKind = "scroll"
	ActionNewTab    ActionKind = "new_tab"
	ActionTabFocus  ActionKind = "tab_focus"
	ActionCloseTab  ActionKind = "close_tab"
	ActionGoto      ActionKind = "goto"
	ActionGoBack    ActionKind = "go_back"
	ActionGoForward ActionKind = "go_forward"
	// ActionStop declares the sub-task complete, optionally carrying a
	// textual answer.
	ActionStop ActionKind = "stop"
	// ActionNone records a model reply that could not be parsed into a
	// valid action. It is never sent to the environment.
	ActionNone ActionKind = "none"
)

// Action is one concrete step decided by the executor's model call. Only the
// fields relevant to the Kind are populated.
type Action struct {
	Kind       ActionKind `json:"kind"`
	ElementID  int        `json:"element_id,omitempty"`
	Text       string     `json:"text,omitempty"`
	PressEnter bool       `json:"press_enter,omitempty"`
	Keys       string     `json:"keys,omitempty"`
	Direction  string     `json:"direction,omitempty"`
	TabIndex   int        `json:"tab_index,omitempty"`
	URL        string     `json:"url,omitempty"`
	Answer     string     `json:"answer,omitempty"`
	// Raw keeps the model's verbatim action string for the trajectory.
	Raw string `json:"raw,omitempty"`
}

// Equivalent reports whether two actions would have the same effect on the
// environment. Raw text is ignored; the executor uses this to detect the
// agent repeating itself.
func (a Action) Equivalent(b Action) bool {
	return a.Kind == b.Kind &&
		a.ElementID == b.ElementID &&
		a.Text == b.Text &&
		a.Keys == b.Keys &&
		a.Direction == b.Direction &&
		a.TabIndex == b.TabIndex &&
		a.URL == b.URL
}

// String renders the action back in DSL form for logs and prompts.
func (a Action) String() string {
	switch a.Kind {
	case ActionClick, ActionHover:
		return fmt.Sprintf("%s [%d]", a.Kind, a.ElementID)
	case ActionTypeText:
		enter := 0
		if a.PressEnter {
			enter = 1
		}
		return fmt.Sprintf("type [%d] [%s] [%d]", a.ElementID, a.Text, enter)
	case ActionPress:
		return fmt.Sprintf("press [%s]", a.Keys)
	case ActionScroll:
		return fmt.Sprintf("scroll [%s]", a.Direction)
	case ActionTabFocus:
		return fmt.Sprintf("tab_focus [%d]", a.TabIndex)
	case ActionGoto:
		return fmt.Sprintf("goto [%s]", a.URL)
	case ActionStop:
		return fmt.Sprintf("stop [%s]", a.Answer)
	default:
		return string(a.Kind)
	}
}
