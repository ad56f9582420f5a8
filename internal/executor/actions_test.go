package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coactdev/coact/api/schemas"
)

func TestParseAction(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want schemas.Action
	}{
		{
			name: "click",
			raw:  "click [12]",
			want: schemas.Action{Kind: schemas.ActionClick, ElementID: 12},
		},
		{
			name: "type with enter",
			raw:  "type [5] [blue ceramic mug] [1]",
			want: schemas.Action{Kind: schemas.ActionTypeText, ElementID: 5, Text: "blue ceramic mug", PressEnter: true},
		},
		{
			name: "type without enter",
			raw:  "type [5] [blue ceramic mug] [0]",
			want: schemas.Action{Kind: schemas.ActionTypeText, ElementID: 5, Text: "blue ceramic mug"},
		},
		{
			name: "type defaults to enter",
			raw:  "type [5] [mug]",
			want: schemas.Action{Kind: schemas.ActionTypeText, ElementID: 5, Text: "mug", PressEnter: true},
		},
		{
			name: "type text containing brackets",
			raw:  "type [2] [mugs [12 oz] ceramic] [0]",
			want: schemas.Action{Kind: schemas.ActionTypeText, ElementID: 2, Text: "mugs [12 oz] ceramic"},
		},
		{
			name: "hover",
			raw:  "hover [3]",
			want: schemas.Action{Kind: schemas.ActionHover, ElementID: 3},
		},
		{
			name: "press",
			raw:  "press [Ctrl+v]",
			want: schemas.Action{Kind: schemas.ActionPress, Keys: "Ctrl+v"},
		},
		{
			name: "scroll bare",
			raw:  "scroll down",
			want: schemas.Action{Kind: schemas.ActionScroll, Direction: "down"},
		},
		{
			name: "scroll bracketed",
			raw:  "scroll [up]",
			want: schemas.Action{Kind: schemas.ActionScroll, Direction: "up"},
		},
		{
			name: "new tab",
			raw:  "new_tab",
			want: schemas.Action{Kind: schemas.ActionNewTab},
		},
		{
			name: "tab focus",
			raw:  "tab_focus [2]",
			want: schemas.Action{Kind: schemas.ActionTabFocus, TabIndex: 2},
		},
		{
			name: "close tab",
			raw:  "close_tab",
			want: schemas.Action{Kind: schemas.ActionCloseTab},
		},
		{
			name: "goto",
			raw:  "goto [http://shop.test/cart]",
			want: schemas.Action{Kind: schemas.ActionGoto, URL: "http://shop.test/cart"},
		},
		{
			name: "go back",
			raw:  "go_back",
			want: schemas.Action{Kind: schemas.ActionGoBack},
		},
		{
			name: "go forward",
			raw:  "go_forward",
			want: schemas.Action{Kind: schemas.ActionGoForward},
		},
		{
			name: "stop with answer",
			raw:  "stop [$24.99]",
			want: schemas.Action{Kind: schemas.ActionStop, Answer: "$24.99"},
		},
		{
			name: "stop empty",
			raw:  "stop",
			want: schemas.Action{Kind: schemas.ActionStop},
		},
		{
			name: "surrounding whitespace",
			raw:  "  click [1]\n",
			want: schemas.Action{Kind: schemas.ActionClick, ElementID: 1},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAction(tc.raw)
			require.NoError(t, err)
			tc.want.Raw = tc.raw
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseActionRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"",
		"click 12",
		"click [abc]",
		"fly [1]",
		"scroll sideways",
		"type [] [text]",
	} {
		got, err := ParseAction(raw)
		require.Error(t, err, "input %q", raw)
		assert.Equal(t, schemas.ActionNone, got.Kind)
	}
}
