package rides

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/richxcame/dispatch/pkg/models"
)

func TestTransitionAllowed(t *testing.T) {
	tests := []struct {
		name string
		from models.RideStatus
		to   models.RideStatus
		want bool
	}{
		{"requested to matching", models.RideStatusRequested, models.RideStatusMatching, true},
		{"requested to cancelled", models.RideStatusRequested, models.RideStatusCancelled, true},
		{"requested skips to assigned", models.RideStatusRequested, models.RideStatusDriverAssigned, false},
		{"matching re-entry", models.RideStatusMatching, models.RideStatusMatching, true},
		{"matching reverts when no drivers", models.RideStatusMatching, models.RideStatusRequested, true},
		{"matching to assigned", models.RideStatusMatching, models.RideStatusDriverAssigned, true},
		{"assigned to en route", models.RideStatusDriverAssigned, models.RideStatusDriverEnRoute, true},
		{"assigned skips to arrived", models.RideStatusDriverAssigned, models.RideStatusDriverArrived, false},
		{"en route to arrived", models.RideStatusDriverEnRoute, models.RideStatusDriverArrived, true},
		{"arrived to in progress", models.RideStatusDriverArrived, models.RideStatusInProgress, true},
		{"in progress to completed", models.RideStatusInProgress, models.RideStatusCompleted, true},
		{"in progress cannot cancel", models.RideStatusInProgress, models.RideStatusCancelled, false},
		{"completed is terminal", models.RideStatusCompleted, models.RideStatusCancelled, false},
		{"cancelled is terminal", models.RideStatusCancelled, models.RideStatusRequested, false},
		{"no backwards motion", models.RideStatusDriverArrived, models.RideStatusDriverEnRoute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TransitionAllowed(tt.from, tt.to))
		})
	}
}

func TestEveryNonTerminalStateExceptInProgressCanCancel(t *testing.T) {
	cancellable := []models.RideStatus{
		models.RideStatusRequested,
		models.RideStatusMatching,
		models.RideStatusDriverAssigned,
		models.RideStatusDriverEnRoute,
		models.RideStatusDriverArrived,
	}
	for _, from := range cancellable {
		assert.True(t, TransitionAllowed(from, models.RideStatusCancelled), string(from))
	}
	assert.False(t, TransitionAllowed(models.RideStatusInProgress, models.RideStatusCancelled))
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []models.RideStatus{
		models.RideStatusRequested, models.RideStatusMatching, models.RideStatusDriverAssigned,
		models.RideStatusDriverEnRoute, models.RideStatusDriverArrived, models.RideStatusInProgress,
		models.RideStatusCompleted, models.RideStatusCancelled,
	}
	for _, terminal := range []models.RideStatus{models.RideStatusCompleted, models.RideStatusCancelled} {
		for _, to := range all {
			assert.False(t, TransitionAllowed(terminal, to), "%s -> %s", terminal, to)
		}
	}
}
