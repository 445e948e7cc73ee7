package dispatch

import (
	"fmt"

	"github.com/linesmerrill/camp-cad-api/models"
)

// position of each status along the lifecycle chain
var statusRank = map[models.CallStatus]int{
	models.CallStatusPending:    0,
	models.CallStatusDispatched: 1,
	models.CallStatusEnroute:    2,
	models.CallStatusOnScene:    3,
	models.CallStatusCleared:    4,
}

// CheckTransition reports whether a call may move from one status to another.
// Moves go forward along pending, dispatched, enroute, on_scene, cleared and
// may skip steps. Cancelled is reachable from any non-terminal status.
func CheckTransition(from, to models.CallStatus) error {
	if !to.Valid() {
		return NewValidationError(fmt.Errorf("unknown status %q", to))
	}
	if from == to {
		return nil
	}
	if from.Terminal() {
		return conflictf("call is %s and cannot move to %s", from, to)
	}
	if to == models.CallStatusCancelled {
		return nil
	}
	if statusRank[to] < statusRank[from] {
		return conflictf("call cannot move back from %s to %s", from, to)
	}
	return nil
}
