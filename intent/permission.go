package intent

import (
	"github.com/burrowgame/burrow/types"
)

// permissionValidator enforces ownership and access-control rules. Like the
// other validators it defers when the objects it needs are absent; the state
// validator is authoritative for existence.
type permissionValidator struct{}

func (permissionValidator) Name() string { return "permission" }

func (permissionValidator) Validate(rec Record, snap *types.RoomSnapshot) Result {
	switch rec.Name {
	case "upgradeController":
		return validateUpgradeController(rec, snap)
	case "attackController":
		return validateAttackController(rec, snap)
	case "reserveController":
		return validateReserveController(rec, snap)
	case "attack", "rangedAttack":
		return validateAttack(rec, snap)
	case "repair", "transfer", "withdraw":
		return validateRampartCover(rec, snap)
	case "harvest":
		return validateHarvest(rec, snap)
	}
	return pass()
}

func validateUpgradeController(rec Record, snap *types.RoomSnapshot) Result {
	ctrl := targetController(rec, snap)
	if ctrl == nil {
		return pass()
	}
	if ctrl.Owner == rec.Tenant || ctrl.Reservation == rec.Tenant {
		return pass()
	}
	return fail(ReasonNotOwner)
}

func validateAttackController(rec Record, snap *types.RoomSnapshot) Result {
	ctrl := targetController(rec, snap)
	if ctrl == nil {
		return pass()
	}
	if ctrl.Owner == rec.Tenant || ctrl.Reservation == rec.Tenant {
		return fail(ReasonOwnController)
	}
	return pass()
}

func validateReserveController(rec Record, snap *types.RoomSnapshot) Result {
	ctrl := targetController(rec, snap)
	if ctrl == nil {
		return pass()
	}
	if ctrl.Owner != "" && ctrl.Owner != rec.Tenant {
		return fail(ReasonHostileController)
	}
	if ctrl.Reservation != "" && ctrl.Reservation != rec.Tenant {
		return fail(ReasonHostileController)
	}
	return pass()
}

// validateAttack blocks attacks while the room controller's safe mode is
// active, unless the actor's tenant owns the controller.
func validateAttack(rec Record, snap *types.RoomSnapshot) Result {
	ctrl := snap.Controller()
	if ctrl == nil {
		return pass()
	}
	if ctrl.SafeModeUntil > snap.Tick && ctrl.Owner != rec.Tenant {
		return fail(ReasonSafeMode)
	}
	return pass()
}

// validateRampartCover rejects repair/transfer/withdraw against a position
// covered by a non-public rampart the actor's tenant does not own.
func validateRampartCover(rec Record, snap *types.RoomSnapshot) Result {
	targetID, ok := rec.TargetID()
	if !ok {
		return pass()
	}
	target := snap.Get(targetID)
	if target == nil {
		return pass()
	}
	rampart := snap.RampartAt(target.X, target.Y)
	if rampart == nil || rampart.ID == target.ID {
		return pass()
	}
	if !rampart.IsPublic && rampart.Owner != rec.Tenant {
		return fail(ReasonRampartProtected)
	}
	return pass()
}

// validateHarvest requires the room be unclaimed, or owned/reserved by the
// actor's tenant.
func validateHarvest(rec Record, snap *types.RoomSnapshot) Result {
	ctrl := snap.Controller()
	if ctrl == nil {
		return pass()
	}
	if ctrl.Owner == "" && ctrl.Reservation == "" {
		return pass()
	}
	if ctrl.Owner == rec.Tenant || ctrl.Reservation == rec.Tenant {
		return pass()
	}
	return fail(ReasonHostileRoom)
}

func targetController(rec Record, snap *types.RoomSnapshot) *types.Object {
	targetID, ok := rec.TargetID()
	if !ok {
		return nil
	}
	target := snap.Get(targetID)
	if target == nil || target.Type != types.ObjectController {
		return nil
	}
	return target
}
