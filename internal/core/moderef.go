package core

import "strings"

type modeRefKind int

const (
	modeRefDefault modeRefKind = iota
	modeRefByID
	modeRefByLegacyName
)

// ModeRef names the mode a translation request wants: an explicit mode id,
// one of the legacy built-in names, or (zero value) the user's default.
type ModeRef struct {
	kind  modeRefKind
	value string
}

func ModeByID(id string) ModeRef {
	return ModeRef{kind: modeRefByID, value: strings.TrimSpace(id)}
}

func ModeByLegacyName(name string) ModeRef {
	return ModeRef{kind: modeRefByLegacyName, value: strings.ToLower(strings.TrimSpace(name))}
}

// DefaultMode refers to whatever mode is currently the user's default.
func DefaultMode() ModeRef { return ModeRef{} }

func (r ModeRef) IsDefault() bool { return r.kind == modeRefDefault }

func (r ModeRef) String() string {
	switch r.kind {
	case modeRefByID:
		return "id:" + r.value
	case modeRefByLegacyName:
		return "legacy:" + r.value
	default:
		return "default"
	}
}

// ParseModeRef builds a ModeRef from the optional request fields. An id
// wins over a legacy name; a legacy name must be a built-in one.
func ParseModeRef(modeID, legacyName string) (ModeRef, error) {
	if strings.TrimSpace(modeID) != "" {
		return ModeByID(modeID), nil
	}
	if strings.TrimSpace(legacyName) == "" {
		return DefaultMode(), nil
	}
	if !IsBuiltinMode(legacyName) {
		return ModeRef{}, newError(ErrValidation, "Mode must be professional, personal, or casual")
	}
	return ModeByLegacyName(legacyName), nil
}
