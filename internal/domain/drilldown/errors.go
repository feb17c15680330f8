package drilldown

import "errors"

// ErrNoSelection is returned by Reload when nothing is selected.
var ErrNoSelection = errors.New("no score selected")
