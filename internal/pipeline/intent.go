package pipeline

import (
	"fmt"

	"github.com/bryanchriswhite/taskdock/internal/model"
)

// Intent is a request from the presentation layer, applied on the pipeline
// goroutine.
type Intent interface {
	intent()
}

// PinOp selects what a pin intent does.
type PinOp int

const (
	PinOpPin PinOp = iota
	PinOpUnpin
	PinOpToggle
)

func (o PinOp) String() string {
	switch o {
	case PinOpPin:
		return "pin"
	case PinOpUnpin:
		return "unpin"
	default:
		return "toggle"
	}
}

// ParsePinOp parses "pin", "unpin" or "toggle".
func ParsePinOp(s string) (PinOp, error) {
	switch s {
	case "pin", "add":
		return PinOpPin, nil
	case "unpin", "remove":
		return PinOpUnpin, nil
	case "toggle":
		return PinOpToggle, nil
	}
	return 0, fmt.Errorf("unknown pin operation %q", s)
}

// Move commits a drag reorder of one container.
type Move struct {
	Container model.ContainerID
	Order     []model.WindowID
}

// PinWindow changes the pin state of a window.
type PinWindow struct {
	ID model.WindowID
	Op PinOp
}

// PinApp changes the pin state of an application.
type PinApp struct {
	AppID model.AppID
	Op    PinOp
}

// Activate raises and focuses a window.
type Activate struct{ ID model.WindowID }

// Close closes a window.
type Close struct{ ID model.WindowID }

// Minimize iconifies a window.
type Minimize struct{ ID model.WindowID }

// Refresh requests a rebuild.
type Refresh struct{ Full bool }

func (Move) intent()      {}
func (PinWindow) intent() {}
func (PinApp) intent()    {}
func (Activate) intent()  {}
func (Close) intent()     {}
func (Minimize) intent()  {}
func (Refresh) intent()   {}
