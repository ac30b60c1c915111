package intent

import (
	"github.com/burrowgame/burrow/types"
)

// Intents a spawning actor may still raise. Everything else requires a fully
// spawned actor.
var spawnAllowed = map[string]struct{}{
	"suicide": {},
	"remove":  {},
	"set":     {},
	"patch":   {},
}

var actorNeedsStore = map[string]struct{}{
	"transfer": {},
	"withdraw": {},
}

var targetNeedsHits = map[string]struct{}{
	"attack":       {},
	"rangedAttack": {},
	"heal":         {},
	"rangedHeal":   {},
	"repair":       {},
}

var targetNeedsStore = map[string]struct{}{
	"transfer":       {},
	"withdraw":       {},
	"transferEnergy": {},
}

// stateValidator is authoritative for actor/target existence and liveness.
// An absent actor id defers; an actor id that resolves to nothing fails.
type stateValidator struct{}

func (stateValidator) Name() string { return "state" }

func (stateValidator) Validate(rec Record, snap *types.RoomSnapshot) Result {
	if rec.Actor == "" {
		return pass()
	}
	actor := snap.Get(rec.Actor)
	if actor == nil || !actor.Alive() {
		return fail(ReasonInvalidActor)
	}
	if _, allowed := spawnAllowed[rec.Name]; actor.Spawning && !allowed {
		return fail(ReasonInvalidActor)
	}
	if _, needs := actorNeedsStore[rec.Name]; needs && actor.Store == nil {
		return fail(ReasonInvalidActor)
	}

	targetID, ok := rec.TargetID()
	if !ok {
		return pass()
	}
	target := snap.Get(targetID)
	if target == nil {
		return fail(ReasonInvalidTarget)
	}
	if target.ID == actor.ID {
		return fail(ReasonInvalidTarget)
	}
	if _, allowed := spawnAllowed[rec.Name]; target.Spawning && !allowed {
		return fail(ReasonInvalidTarget)
	}
	if _, needs := targetNeedsHits[rec.Name]; needs && target.HitsMax == 0 {
		return fail(ReasonInvalidTarget)
	}
	if _, needs := targetNeedsStore[rec.Name]; needs && target.Store == nil {
		return fail(ReasonInvalidTarget)
	}
	return pass()
}
