package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionKind is a user command understood by the dashboard.
type ActionKind string

// Dashboard actions.
const (
	// ActionSelect drills into the row at Action.Index (1-based, as displayed).
	ActionSelect  ActionKind = "select"
	ActionBack    ActionKind = "back"
	ActionRefresh ActionKind = "refresh"
	ActionReload  ActionKind = "reload"
	ActionQuit    ActionKind = "quit"
)

// Action is one queued user command.
type Action struct {
	Kind  ActionKind
	Index int
}

func (a Action) String() string {
	if a.Kind == ActionSelect {
		return fmt.Sprintf("%s %d", a.Kind, a.Index)
	}
	return string(a.Kind)
}

var actionAliases = map[string]ActionKind{
	"select":  ActionSelect,
	"s":       ActionSelect,
	"back":    ActionBack,
	"b":       ActionBack,
	"esc":     ActionBack,
	"refresh": ActionRefresh,
	"r":       ActionRefresh,
	"reload":  ActionReload,
	"l":       ActionReload,
	"quit":    ActionQuit,
	"q":       ActionQuit,
	"exit":    ActionQuit,
}

// ParseAction reads a command line such as "select 3" or "q".
// A bare number is shorthand for selecting that row.
func ParseAction(line string) (Action, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return Action{}, ErrEmptyAction
	}

	if n, err := strconv.Atoi(fields[0]); err == nil && len(fields) == 1 {
		return selectAction(n)
	}

	kind, ok := actionAliases[fields[0]]
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, fields[0])
	}
	if kind != ActionSelect {
		if len(fields) > 1 {
			return Action{}, fmt.Errorf("%w: %s takes no argument", ErrInvalidAction, kind)
		}
		return Action{Kind: kind}, nil
	}

	if len(fields) != 2 {
		return Action{}, fmt.Errorf("%w: usage: select N", ErrInvalidAction)
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return Action{}, fmt.Errorf("%w: row %q is not a number", ErrInvalidAction, fields[1])
	}
	return selectAction(n)
}

func selectAction(n int) (Action, error) {
	if n < 1 {
		return Action{}, fmt.Errorf("%w: row must be at least 1", ErrInvalidAction)
	}
	return Action{Kind: ActionSelect, Index: n}, nil
}
