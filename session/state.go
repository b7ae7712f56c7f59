package session

import (
	"github.com/pkg/errors"
)

// State is the calibration state of a session.
type State int

const (
	// StateUncalibrated is the initial state; nothing has been accepted.
	StateUncalibrated State = iota
	// StateAccumulating holds at least one observation but no camera model.
	StateAccumulating
	// StateCalibrating has a background solve in flight.
	StateCalibrating
	// StateCalibrated has a camera model, solved or loaded.
	StateCalibrated
)

func (s State) String() string {
	switch s {
	case StateUncalibrated:
		return "uncalibrated"
	case StateAccumulating:
		return "accumulating"
	case StateCalibrating:
		return "calibrating"
	case StateCalibrated:
		return "calibrated"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidTransition is returned when a command is not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNotCalibrated is returned when saving without a camera model.
	ErrNotCalibrated = errors.New("camera is not calibrated")
	// ErrNoDetection is returned when accepting while no board is detected.
	ErrNoDetection = errors.New("no board detected in the current frame")
)

var transitions = map[State][]State{
	StateUncalibrated: {StateAccumulating, StateCalibrated},
	StateAccumulating: {StateCalibrating, StateCalibrated},
	StateCalibrating:  {StateAccumulating, StateCalibrated},
	StateCalibrated:   {StateCalibrated},
}

// checkTransition returns ErrInvalidTransition unless from may move to to.
func checkTransition(from, to State) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
}
