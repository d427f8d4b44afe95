package common

import "errors"

// Entry point groups that can be paused independently.
const (
	ModuleStake  = "stake"
	ModuleClaims = "claims"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Pauses is a static PauseView keyed by module name.
type Pauses map[string]bool

func (p Pauses) IsPaused(module string) bool { return p[module] }

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
