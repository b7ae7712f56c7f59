// Package calibration accumulates checkerboard observations, solves for camera intrinsics and
// estimates the board pose in single frames.
package calibration

import (
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrInvalidObservation is returned when corners and board points do not pair up.
var ErrInvalidObservation = errors.New("invalid observation")

// Observation pairs the refined image corners of one accepted frame with the board points they image.
// Element i of Corners corresponds to element i of BoardPoints, in row-major board order.
type Observation struct {
	corners     []r2.Point
	boardPoints []r3.Vector
	index       int
}

// NewObservation copies corners and boardPoints into a new Observation.
func NewObservation(corners []r2.Point, boardPoints []r3.Vector, index int) (Observation, error) {
	if len(corners) == 0 {
		return Observation{}, errors.Wrap(ErrInvalidObservation, "no corners")
	}
	if len(corners) != len(boardPoints) {
		return Observation{}, errors.Wrapf(ErrInvalidObservation,
			"%d corners but %d board points", len(corners), len(boardPoints))
	}
	return Observation{
		corners:     append([]r2.Point(nil), corners...),
		boardPoints: append([]r3.Vector(nil), boardPoints...),
		index:       index,
	}, nil
}

// Corners returns a copy of the image corners.
func (o Observation) Corners() []r2.Point {
	return append([]r2.Point(nil), o.corners...)
}

// BoardPoints returns a copy of the board points.
func (o Observation) BoardPoints() []r3.Vector {
	return append([]r3.Vector(nil), o.boardPoints...)
}

// Index is the position of the observation in the store.
func (o Observation) Index() int {
	return o.index
}

// Len is the number of correspondences.
func (o Observation) Len() int {
	return len(o.corners)
}

// ObservationStore is an append-only list of accepted observations.
type ObservationStore struct {
	mu           sync.Mutex
	observations []Observation
}

// NewObservationStore returns an empty store.
func NewObservationStore() *ObservationStore {
	return &ObservationStore{}
}

// Accept appends one observation. No deduplication is done.
func (s *ObservationStore) Accept(corners []r2.Point, boardPoints []r3.Vector) (Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs, err := NewObservation(corners, boardPoints, len(s.observations))
	if err != nil {
		return Observation{}, err
	}
	s.observations = append(s.observations, obs)
	return obs, nil
}

// Count returns the number of observations accepted so far.
func (s *ObservationStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observations)
}

// All returns a snapshot of the observations. Later accepts do not change it.
func (s *ObservationStore) All() []Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Observation(nil), s.observations...)
}

// Reset drops every observation.
func (s *ObservationStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations = nil
}
