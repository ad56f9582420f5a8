package executor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/coactdev/coact/api/schemas"
)

// The id-based action DSL the model answers in. One action per reply,
// inside the final fenced block.
var (
	clickRegex = regexp.MustCompile(`^click \[(\d+)\]$`)
	// The flagged form must be tried first: the greedy text capture of the
	// flagless form would otherwise swallow a trailing [0] or [1].
	typeFlagRegex = regexp.MustCompile(`^type \[(\d+)\] \[(.*)\] \[([01])\]$`)
	typeRegex     = regexp.MustCompile(`^type \[(\d+)\] \[(.*)\]$`)
	hoverRegex    = regexp.MustCompile(`^hover \[(\d+)\]$`)
	pressRegex    = regexp.MustCompile(`^press \[(.+)\]$`)
	scrollRegex   = regexp.MustCompile(`^scroll \[?(up|down)\]?$`)
	tabFocusRegex = regexp.MustCompile(`^tab_focus \[(\d+)\]$`)
	gotoRegex     = regexp.MustCompile(`^goto \[(.+)\]$`)
	stopRegex     = regexp.MustCompile(`^stop(?: \[(.*)\])?$`)
)

// ParseAction parses one DSL action string. The raw string is preserved on
// the returned action for the trajectory record.
func ParseAction(raw string) (schemas.Action, error) {
	s := strings.TrimSpace(raw)
	action := schemas.Action{Raw: raw}

	switch {
	case clickRegex.MatchString(s):
		m := clickRegex.FindStringSubmatch(s)
		action.Kind = schemas.ActionClick
		action.ElementID, _ = strconv.Atoi(m[1])
	case typeFlagRegex.MatchString(s):
		m := typeFlagRegex.FindStringSubmatch(s)
		action.Kind = schemas.ActionTypeText
		action.ElementID, _ = strconv.Atoi(m[1])
		action.Text = m[2]
		action.PressEnter = m[3] == "1"
	case typeRegex.MatchString(s):
		m := typeRegex.FindStringSubmatch(s)
		action.Kind = schemas.ActionTypeText
		action.ElementID, _ = strconv.Atoi(m[1])
		action.Text = m[2]
		// Enter is pressed after typing unless explicitly disabled.
		action.PressEnter = true
	case hoverRegex.MatchString(s):
		m := hoverRegex.FindStringSubmatch(s)
		action.Kind = schemas.ActionHover
		action.ElementID, _ = strconv.Atoi(m[1])
	case pressRegex.MatchString(s):
		m := pressRegex.FindStringSubmatch(s)
		action.Kind = schemas.ActionPress
		action.Keys = m[1]
	case scrollRegex.MatchString(s):
		m := scrollRegex.FindStringSubmatch(s)
		action.Kind = schemas.ActionScroll
		action.Direction = m[1]
	case s == "new_tab":
		action.Kind = schemas.ActionNewTab
	case tabFocusRegex.MatchString(s):
		m := tabFocusRegex.FindStringSubmatch(s)
		action.Kind = schemas.ActionTabFocus
		action.TabIndex, _ = strconv.Atoi(m[1])
	case s == "close_tab":
		action.Kind = schemas.ActionCloseTab
	case gotoRegex.MatchString(s):
		m := gotoRegex.FindStringSubmatch(s)
		action.Kind = schemas.ActionGoto
		action.URL = m[1]
	case s == "go_back":
		action.Kind = schemas.ActionGoBack
	case s == "go_forward":
		action.Kind = schemas.ActionGoForward
	case stopRegex.MatchString(s):
		m := stopRegex.FindStringSubmatch(s)
		action.Kind = schemas.ActionStop
		action.Answer = m[1]
	default:
		action.Kind = schemas.ActionNone
		return action, fmt.Errorf("unrecognized action %q", s)
	}

	return action, nil
}
