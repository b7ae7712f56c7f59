package session

import (
	"image"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/arcal/calibration"
)

type calibrationOutcome struct {
	result *calibration.CalibrationResult
	err    error
}

// startWorker solves observations on a background goroutine and moves to StateCalibrating. The caller
// must hold mu.
func (s *Session) startWorker(observations []calibration.Observation, frameSize image.Point) error {
	if err := s.setState(StateCalibrating); err != nil {
		return err
	}
	opts := s.calibrationOptions()
	s.workers.Add(1)
	utils.PanicCapturingGoWithCallback(func() {
		defer s.workers.Done()
		res, err := calibration.Calibrate(s.workerCtx, observations, frameSize, opts)
		s.results <- calibrationOutcome{result: res, err: err}
	}, func(err interface{}) {
		s.results <- calibrationOutcome{err: errors.Errorf("calibration worker panicked: %v", err)}
	})
	s.logger.Infow("calibration started in background", "observations", len(observations))
	return nil
}

// pollWorker applies a finished background solve without blocking. A failed solve returns the session to
// StateAccumulating so more views can be accepted. An outcome arriving after the session left
// StateCalibrating, because a model was loaded meanwhile, is discarded.
func (s *Session) pollWorker() {
	select {
	case outcome := <-s.results:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state != StateCalibrating {
			s.logger.Infow("discarding background calibration result", "state", s.state.String(), "error", outcome.err)
			return
		}
		if outcome.err != nil {
			s.logger.Warnw("background calibration failed, keep accepting views", "error", outcome.err)
			if err := s.setState(StateAccumulating); err != nil {
				s.logger.Errorw("cannot leave calibrating state", "error", err)
			}
			return
		}
		if err := s.applyCalibration(outcome.result); err != nil {
			s.logger.Errorw("cannot apply background calibration", "error", err)
		}
	default:
	}
}
