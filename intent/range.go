package intent

import (
	"github.com/burrowgame/burrow/types"
)

const defaultRange = 1

// Intent types allowed to act at a distance.
var extendedRanges = map[string]int{
	"rangedAttack":      3,
	"rangedHeal":        3,
	"build":             3,
	"repair":            3,
	"upgradeController": 3,
}

// rangeValidator enforces the Chebyshev-distance ceiling between actor and
// target. Coordinates are taken from the intent payload when present and
// resolved from the room snapshot otherwise; if either side stays unresolved
// the validator defers.
type rangeValidator struct{}

func (rangeValidator) Name() string { return "range" }

func (rangeValidator) Validate(rec Record, snap *types.RoomSnapshot) Result {
	ax, ay, ok := resolveActorPos(rec, snap)
	if !ok {
		return pass()
	}
	tx, ty, ok := resolveTargetPos(rec, snap)
	if !ok {
		return pass()
	}

	required := defaultRange
	if r, ok := extendedRanges[rec.Name]; ok {
		required = r
	}
	if chebyshev(ax, ay, tx, ty) > required {
		return fail(ReasonNotInRange)
	}
	return pass()
}

func resolveActorPos(rec Record, snap *types.RoomSnapshot) (int, int, bool) {
	x, okX := rec.NumberField("x")
	y, okY := rec.NumberField("y")
	if okX && okY {
		return int(x), int(y), true
	}
	if actor := snap.Get(rec.Actor); actor != nil {
		return actor.X, actor.Y, true
	}
	return 0, 0, false
}

func resolveTargetPos(rec Record, snap *types.RoomSnapshot) (int, int, bool) {
	x, okX := rec.NumberField("targetX")
	y, okY := rec.NumberField("targetY")
	if okX && okY {
		return int(x), int(y), true
	}
	if targetID, ok := rec.TargetID(); ok {
		if target := snap.Get(targetID); target != nil {
			return target.X, target.Y, true
		}
	}
	return 0, 0, false
}

func chebyshev(x1, y1, x2, y2 int) int {
	dx := abs(x1 - x2)
	dy := abs(y1 - y2)
	if dx > dy {
		return dx
	}
	return dy
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
