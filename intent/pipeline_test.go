package intent_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/burrowgame/burrow/intent"
	"github.com/burrowgame/burrow/types"
)

func testSnapshot(tick uint64, objects ...*types.Object) *types.RoomSnapshot {
	snap := &types.RoomSnapshot{
		Name:    "W1N1",
		Tick:    tick,
		Objects: map[string]*types.Object{},
	}
	for _, obj := range objects {
		snap.Objects[obj.ID] = obj
	}
	return snap
}

func creep(id, owner string, x, y int) *types.Object {
	return &types.Object{
		ID: id, Type: types.ObjectCreep, Room: "W1N1", Owner: owner,
		X: x, Y: y, Hits: 100, HitsMax: 100,
		Store: map[string]int{types.ResourceEnergy: 50}, StoreCapacity: 50,
	}
}

func record(tenant, actor, name string, args ...intent.Fields) intent.Record {
	return intent.Record{Tenant: tenant, Actor: actor, Name: name, Args: args}
}

func TestSchemaRejectsMissingRequiredField(t *testing.T) {
	snap := testSnapshot(10, creep("c1", "alice", 5, 5), creep("c2", "alice", 5, 6))

	// transfer without resourceType never reaches the later validators or
	// the mutation writer.
	res := intent.NewPipeline().Validate(
		record("alice", "c1", "transfer", intent.Fields{
			"targetId": intent.TextValue("c2"),
		}), snap)
	assert.Assert(t, !res.OK)
	assert.Equal(t, intent.ReasonInvalidArgs, res.Reason)
}

func TestSchemaRejectsUnknownResource(t *testing.T) {
	snap := testSnapshot(10, creep("c1", "alice", 5, 5), creep("c2", "alice", 5, 6))

	res := intent.NewPipeline().Validate(
		record("alice", "c1", "transfer", intent.Fields{
			"targetId":     intent.TextValue("c2"),
			"resourceType": intent.TextValue("unobtainium"),
		}), snap)
	assert.Assert(t, !res.OK)
	assert.Equal(t, intent.ReasonInvalidArgs, res.Reason)
}

func TestSchemaRejectsNegativeAmount(t *testing.T) {
	snap := testSnapshot(10, creep("c1", "alice", 5, 5), creep("c2", "alice", 5, 6))

	res := intent.NewPipeline().Validate(
		record("alice", "c1", "transfer", intent.Fields{
			"targetId":     intent.TextValue("c2"),
			"resourceType": intent.TextValue(types.ResourceEnergy),
			"amount":       intent.NumberValue(-10),
		}), snap)
	assert.Assert(t, !res.OK)
	assert.Equal(t, intent.ReasonInvalidArgs, res.Reason)
}

func TestStateRejectsDeadActor(t *testing.T) {
	dead := creep("c1", "alice", 5, 5)
	dead.Hits = 0
	snap := testSnapshot(10, dead, creep("c2", "bob", 5, 6))

	res := intent.NewPipeline().Validate(
		record("alice", "c1", "attack", intent.Fields{
			"targetId": intent.TextValue("c2"),
		}), snap)
	assert.Assert(t, !res.OK)
	assert.Equal(t, intent.ReasonInvalidActor, res.Reason)
}

func TestStateRejectsSelfTarget(t *testing.T) {
	snap := testSnapshot(10, creep("c1", "alice", 5, 5))

	res := intent.NewPipeline().Validate(
		record("alice", "c1", "heal", intent.Fields{
			"targetId": intent.TextValue("c1"),
		}), snap)
	assert.Assert(t, !res.OK)
	assert.Equal(t, intent.ReasonInvalidTarget, res.Reason)
}

func TestAttackRange(t *testing.T) {
	// Distance 2 fails the default range of 1; distance 1 passes through to
	// permission and succeeds.
	snap := testSnapshot(10, creep("c1", "alice", 5, 5), creep("c2", "bob", 5, 7))
	res := intent.NewPipeline().Validate(
		record("alice", "c1", "attack", intent.Fields{
			"targetId": intent.TextValue("c2"),
		}), snap)
	assert.Assert(t, !res.OK)
	assert.Equal(t, intent.ReasonNotInRange, res.Reason)

	snap = testSnapshot(10, creep("c1", "alice", 5, 5), creep("c2", "bob", 5, 6))
	res = intent.NewPipeline().Validate(
		record("alice", "c1", "attack", intent.Fields{
			"targetId": intent.TextValue("c2"),
		}), snap)
	assert.Assert(t, res.OK)
}

func TestRangedAttackAllowsDistanceThree(t *testing.T) {
	snap := testSnapshot(10, creep("c1", "alice", 5, 5), creep("c2", "bob", 8, 5))
	res := intent.NewPipeline().Validate(
		record("alice", "c1", "rangedAttack", intent.Fields{
			"targetId": intent.TextValue("c2"),
		}), snap)
	assert.Assert(t, res.OK)

	snap = testSnapshot(10, creep("c1", "alice", 5, 5), creep("c2", "bob", 9, 5))
	res = intent.NewPipeline().Validate(
		record("alice", "c1", "rangedAttack", intent.Fields{
			"targetId": intent.TextValue("c2"),
		}), snap)
	assert.Assert(t, !res.OK)
	assert.Equal(t, intent.ReasonNotInRange, res.Reason)
}

func TestRangeUsesPayloadCoordinates(t *testing.T) {
	// Snapshot positions are adjacent, but the payload says the target is
	// four tiles away. The payload wins.
	snap := testSnapshot(10, creep("c1", "alice", 5, 5), creep("c2", "bob", 5, 6))
	res := intent.NewPipeline().Validate(
		record("alice", "c1", "attack", intent.Fields{
			"targetId": intent.TextValue("c2"),
			"targetX":  intent.NumberValue(9), "targetY": intent.NumberValue(5),
		}), snap)
	assert.Assert(t, !res.OK)
	assert.Equal(t, intent.ReasonNotInRange, res.Reason)

	// The other direction: a distant snapshot target brought into range by
	// payload coordinates for both sides.
	snap = testSnapshot(10, creep("c1", "alice", 5, 5), creep("c2", "bob", 40, 40))
	res = intent.NewPipeline().Validate(
		record("alice", "c1", "attack", intent.Fields{
			"targetId": intent.TextValue("c2"),
			"x":        intent.NumberValue(39), "y": intent.NumberValue(39),
			"targetX":  intent.NumberValue(40), "targetY": intent.NumberValue(40),
		}), snap)
	assert.Assert(t, res.OK)
}

func TestHarvestHostileRoom(t *testing.T) {
	source := &types.Object{ID: "s1", Type: types.ObjectSource, Room: "W1N1", X: 5, Y: 6}
	controller := &types.Object{
		ID: "ctrl", Type: types.ObjectController, Room: "W1N1", X: 20, Y: 20,
		Owner: "bob", Level: 3,
	}
	snap := testSnapshot(10, creep("c1", "alice", 5, 5), source, controller)

	res := intent.NewPipeline().Validate(
		record("alice", "c1", "harvest", intent.Fields{
			"targetId": intent.TextValue("s1"),
		}), snap)
	assert.Assert(t, !res.OK)
	assert.Equal(t, intent.ReasonHostileRoom, res.Reason)

	// The identical intent in a neutral, controller-less room succeeds.
	snap = testSnapshot(10, creep("c1", "alice", 5, 5), source)
	res = intent.NewPipeline().Validate(
		record("alice", "c1", "harvest", intent.Fields{
			"targetId": intent.TextValue("s1"),
		}), snap)
	assert.Assert(t, res.OK)
}

func TestSafeModeBlocksAttack(t *testing.T) {
	controller := &types.Object{
		ID: "ctrl", Type: types.ObjectController, Room: "W1N1", X: 20, Y: 20,
		Owner: "bob", SafeModeUntil: 100,
	}
	snap := testSnapshot(10, creep("c1", "alice", 5, 5), creep("c2", "bob", 5, 6), controller)

	res := intent.NewPipeline().Validate(
		record("alice", "c1", "attack", intent.Fields{
			"targetId": intent.TextValue("c2"),
		}), snap)
	assert.Assert(t, !res.OK)
	assert.Equal(t, intent.ReasonSafeMode, res.Reason)

	// The controller's owner may still attack inside its own safe mode.
	res = intent.NewPipeline().Validate(
		record("bob", "c2", "attack", intent.Fields{
			"targetId": intent.TextValue("c1"),
		}), snap)
	assert.Assert(t, res.OK)
}

func TestRampartBlocksWithdraw(t *testing.T) {
	container := &types.Object{
		ID: "cont", Type: "container", Room: "W1N1", X: 5, Y: 6,
		Store: map[string]int{types.ResourceEnergy: 200},
	}
	rampart := &types.Object{
		ID: "ramp", Type: types.ObjectRampart, Room: "W1N1", X: 5, Y: 6,
		Owner: "bob", Hits: 1000, HitsMax: 1000,
	}
	snap := testSnapshot(10, creep("c1", "alice", 5, 5), container, rampart)

	res := intent.NewPipeline().Validate(
		record("alice", "c1", "withdraw", intent.Fields{
			"targetId":     intent.TextValue("cont"),
			"resourceType": intent.TextValue(types.ResourceEnergy),
		}), snap)
	assert.Assert(t, !res.OK)
	assert.Equal(t, intent.ReasonRampartProtected, res.Reason)

	// A public rampart does not block.
	rampart.IsPublic = true
	res = intent.NewPipeline().Validate(
		record("alice", "c1", "withdraw", intent.Fields{
			"targetId":     intent.TextValue("cont"),
			"resourceType": intent.TextValue(types.ResourceEnergy),
		}), snap)
	assert.Assert(t, res.OK)
}

func TestUpgradeControllerRequiresOwnership(t *testing.T) {
	controller := &types.Object{
		ID: "ctrl", Type: types.ObjectController, Room: "W1N1", X: 5, Y: 6,
		Owner: "bob",
	}
	snap := testSnapshot(10, creep("c1", "alice", 5, 5), controller)

	res := intent.NewPipeline().Validate(
		record("alice", "c1", "upgradeController", intent.Fields{
			"targetId": intent.TextValue("ctrl"),
		}), snap)
	assert.Assert(t, !res.OK)
	assert.Equal(t, intent.ReasonNotOwner, res.Reason)

	res = intent.NewPipeline().Validate(
		record("bob", "c1", "upgradeController", intent.Fields{
			"targetId": intent.TextValue("ctrl"),
		}), snap)
	// alice's creep acting for bob: the state validator still sees a live
	// actor, and permission checks the tenant, not the creep owner.
	assert.Assert(t, res.OK)
}

func TestValidatorsDeferOnAbsence(t *testing.T) {
	snap := testSnapshot(10)

	// No actor id, no target, no coordinates: every validator defers and
	// the pipeline passes.
	res := intent.NewPipeline().Validate(record("alice", "", "suicide"), snap)
	assert.Assert(t, res.OK)
}

func TestFieldsFromAny(t *testing.T) {
	fields := intent.FieldsFromAny(map[string]any{
		"targetId": "c2",
		"amount":   float64(25),
		"force":    true,
		"parts":    []any{"move", "work"},
		"weights":  []any{float64(1), float64(2)},
		"junk":     map[string]any{"nested": true},
		"mixed":    []any{"a", float64(1)},
	})

	s, ok := fields.Text("targetId")
	assert.Assert(t, ok)
	assert.Equal(t, "c2", s)

	n, ok := fields.Number("amount")
	assert.Assert(t, ok)
	assert.Equal(t, float64(25), n)

	b, ok := fields.Bool("force")
	assert.Assert(t, ok)
	assert.Equal(t, true, b)

	parts, ok := fields["parts"].TextList()
	assert.Assert(t, ok)
	assert.DeepEqual(t, []string{"move", "work"}, parts)

	weights, ok := fields["weights"].NumberList()
	assert.Assert(t, ok)
	assert.DeepEqual(t, []float64{1, 2}, weights)

	_, ok = fields["junk"]
	assert.Assert(t, !ok)
	_, ok = fields["mixed"]
	assert.Assert(t, !ok)
}
