package toggle

import (
	"errors"

	"primewrap/internal/wrapper"
)

// Action is the transition chosen for one target.
type Action string

const (
	ActionNone    Action = "none"
	ActionInstall Action = "install"
	ActionRevert  Action = "revert"
)

// Outcome is the result of toggling one concrete file.
type Outcome struct {
	Path   string // Original (non-backup) path of the executable
	Action Action
	DryRun bool
	Err    error
}

// Applied reports whether the transition took effect. A revert that only
// failed to delete its wrapper script still counts.
func (o Outcome) Applied() bool {
	if o.DryRun || o.Action == ActionNone {
		return false
	}
	return o.Err == nil || errors.Is(o.Err, wrapper.ErrWrapperLeftBehind)
}

// Reverted is true when this outcome removed a wrapper.
func (o Outcome) Reverted() bool {
	return o.Action == ActionRevert && o.Applied()
}

// Report collects the outcomes of one Toggle call. Directory toggles hold
// one outcome per discovered executable in processing order.
type Report struct {
	Root     string
	IsDir    bool
	Scanned  int // Executables the directory scan found, before skips and de-duplication
	Outcomes []Outcome
}

// Reverted mirrors the last processed outcome, false for an empty report.
func (r *Report) Reverted() bool {
	if r == nil || len(r.Outcomes) == 0 {
		return false
	}
	return r.Outcomes[len(r.Outcomes)-1].Reverted()
}

// Err joins every per-target error, nil when all succeeded.
func (r *Report) Err() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Counts tallies applied installs, applied reverts and failures.
func (r *Report) Counts() (installed, reverted, failed int) {
	if r == nil {
		return 0, 0, 0
	}
	for _, o := range r.Outcomes {
		switch {
		case o.Err != nil && !o.Applied():
			failed++
		case o.Action == ActionInstall && o.Applied():
			installed++
		case o.Reverted():
			reverted++
		}
	}
	return installed, reverted, failed
}
