package calibration

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestNewObservation(t *testing.T) {
	corners := []r2.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}
	pts := []r3.Vector{{X: 0}, {X: 1}}
	obs, err := NewObservation(corners, pts, 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, obs.Index(), test.ShouldEqual, 7)
	test.That(t, obs.Len(), test.ShouldEqual, 2)

	// inputs are copied in and out
	corners[0].X = 100
	test.That(t, obs.Corners()[0].X, test.ShouldEqual, 1)
	out := obs.BoardPoints()
	out[1].X = 50
	test.That(t, obs.BoardPoints()[1].X, test.ShouldEqual, 1)

	_, err = NewObservation(nil, nil, 0)
	test.That(t, errors.Is(err, ErrInvalidObservation), test.ShouldBeTrue)
	_, err = NewObservation(corners, pts[:1], 0)
	test.That(t, errors.Is(err, ErrInvalidObservation), test.ShouldBeTrue)
}

func TestObservationStore(t *testing.T) {
	store := NewObservationStore()
	test.That(t, store.Count(), test.ShouldEqual, 0)
	corners := []r2.Point{{X: 1, Y: 2}}
	pts := []r3.Vector{{}}

	first, err := store.Accept(corners, pts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Index(), test.ShouldEqual, 0)
	snapshot := store.All()

	// duplicates are kept
	second, err := store.Accept(corners, pts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.Index(), test.ShouldEqual, 1)
	test.That(t, store.Count(), test.ShouldEqual, 2)
	test.That(t, snapshot, test.ShouldHaveLength, 1)

	_, err = store.Accept(corners, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, store.Count(), test.ShouldEqual, 2)

	store.Reset()
	test.That(t, store.Count(), test.ShouldEqual, 0)
	test.That(t, store.All(), test.ShouldBeEmpty)
}
