package caminit

import (
	"testing"

	"github.com/mfagerlund/rotera/model"
	"go.viam.com/test"
)

func TestViableStrategiesAlwaysIncludesLatePnP(t *testing.T) {
	strategies := ViableStrategies(true, Capabilities{}, 1)
	test.That(t, len(strategies), test.ShouldBeGreaterThan, 0)
	test.That(t, strategies[len(strategies)-1], test.ShouldEqual, StrategyLatePnPOnly)
}

func TestViableStrategiesIncludesEssentialMatrixWithoutLockedPoints(t *testing.T) {
	strategies := ViableStrategies(false, Capabilities{}, 2)
	found := false
	for _, s := range strategies {
		if s == StrategyEssentialMatrix {
			found = true
		}
	}
	test.That(t, found, test.ShouldBeTrue)
}

func TestRunMarksUninitializedOnFailure(t *testing.T) {
	cameras := []CameraInput{{ID: model.ID("cam1"), Width: 640, Height: 480}}
	result := Run(StrategyLatePnPOnly, cameras, nil, 42)
	test.That(t, len(result.CamerasInitialized), test.ShouldEqual, 1)
	pose := result.Poses[model.ID("cam1")]
	test.That(t, pose, test.ShouldResemble, UninitializedMarker)
}
