package domain

import "strings"

type LightState string

const (
	LightOn    LightState = "on"
	LightOff   LightState = "off"
	LightTimer LightState = "timer"
)

func ParseLightState(s string) (LightState, bool) {
	switch LightState(strings.ToLower(strings.TrimSpace(s))) {
	case LightOn:
		return LightOn, true
	case LightOff:
		return LightOff, true
	case LightTimer:
		return LightTimer, true
	default:
		return "", false
	}
}

type Action string

const (
	ActionOn  Action = "on"
	ActionOff Action = "off"
)

// ToggleAction returns the action that flips a light away from its
// recorded state. Anything that is not "on" is switched on.
func ToggleAction(current LightState) Action {
	if current == LightOn {
		return ActionOff
	}
	return ActionOn
}

func (a Action) ResultingState() LightState {
	if a == ActionOn {
		return LightOn
	}
	return LightOff
}

// Light is identified by room name and light name, unique per owner.
type Light struct {
	Owner       int64
	Room        string
	Name        string
	Description string
	State       LightState
}

type LightKey struct {
	Owner int64
	Room  string
	Name  string
}

// ControlCommand is what the hub sends to a device to switch one light.
type ControlCommand struct {
	Room   string
	Light  string
	Action Action
}

type ToggleResult struct {
	State          LightState
	DeviceResponse string
}
