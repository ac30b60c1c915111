package room

import (
	"github.com/burrowgame/burrow/intent"
	"github.com/burrowgame/burrow/types"
)

const (
	defaultAttackDamage = 30
	defaultHealAmount   = 12
	defaultHarvestYield = 10
	reactionAmount      = 5
	labCooldown         = 10
)

// applyIntent applies one validated intent through the writer. It returns
// false when the intent has no registered effect or degenerates to a no-op
// (zero-amount transfer, dead target already removed); such intents do not
// count as applied and produce no event.
func applyIntent(w *MutationWriter, env types.IntentEnvelope, rec intent.Record) bool {
	switch rec.Name {
	case "set":
		return applySet(w, env, rec)
	case "patch":
		return applyModify(w, env, rec)
	case "remove", "suicide":
		return applyRemove(w, rec)
	case "attack", "rangedAttack":
		return applyDamage(w, rec)
	case "heal", "rangedHeal":
		return applyHeal(w, rec)
	case "transfer":
		return applyTransfer(w, rec, false)
	case "withdraw":
		return applyTransfer(w, rec, true)
	case "transferEnergy":
		return applyTransferEnergy(w, rec)
	case "runReaction":
		return applyRunReaction(w, rec)
	case "harvest":
		return applyHarvest(w, rec)
	}
	return false
}

// applySet overwrites fields directly; nil field values delete the field.
func applySet(w *MutationWriter, env types.IntentEnvelope, rec intent.Record) bool {
	if len(env.Args) == 0 {
		return false
	}
	id := targetOrActor(rec)
	if w.Object(id) == nil {
		return false
	}
	for _, fields := range env.Args {
		if err := w.Patch(id, fields); err != nil {
			return false
		}
	}
	return true
}

func applyModify(w *MutationWriter, env types.IntentEnvelope, rec intent.Record) bool {
	return applySet(w, env, rec)
}

func applyRemove(w *MutationWriter, rec intent.Record) bool {
	id := targetOrActor(rec)
	if w.Object(id) == nil {
		return false
	}
	w.Remove(id)
	return true
}

// applyDamage resolves combat damage against the target id; a target driven
// to zero hits is removed outright.
func applyDamage(w *MutationWriter, rec intent.Record) bool {
	targetID, ok := rec.TargetID()
	if !ok {
		return false
	}
	target := w.Object(targetID)
	if target == nil || target.HitsMax == 0 {
		return false
	}
	damage := defaultAttackDamage
	if n, ok := rec.NumberField("amount"); ok {
		damage = int(n)
	}
	target.Hits -= damage
	if target.Hits <= 0 {
		w.Remove(targetID)
	}
	return true
}

func applyHeal(w *MutationWriter, rec intent.Record) bool {
	targetID, ok := rec.TargetID()
	if !ok {
		return false
	}
	target := w.Object(targetID)
	if target == nil || target.HitsMax == 0 {
		return false
	}
	amount := defaultHealAmount
	if n, ok := rec.NumberField("amount"); ok {
		amount = int(n)
	}
	target.Hits += amount
	if target.Hits > target.HitsMax {
		target.Hits = target.HitsMax
	}
	return true
}

// applyTransfer moves a resource between the actor's and target's stores.
// With reverse set (withdraw) the target is the source of the movement.
func applyTransfer(w *MutationWriter, rec intent.Record, reverse bool) bool {
	targetID, ok := rec.TargetID()
	if !ok {
		return false
	}
	resource, ok := rec.TextField("resourceType")
	if !ok {
		return false
	}
	actor := w.Object(rec.Actor)
	target := w.Object(targetID)
	if actor == nil || target == nil {
		return false
	}
	from, to := actor, target
	if reverse {
		from, to = target, actor
	}

	amount := from.StoreAmount(resource)
	if n, ok := rec.NumberField("amount"); ok && int(n) < amount {
		amount = int(n)
	}
	if free := storeFree(to); free >= 0 && free < amount {
		amount = free
	}
	if amount <= 0 {
		return false
	}
	moveResource(from, to, resource, amount)
	return true
}

// applyTransferEnergy moves energy between linked structures.
func applyTransferEnergy(w *MutationWriter, rec intent.Record) bool {
	targetID, ok := rec.TargetID()
	if !ok {
		return false
	}
	actor := w.Object(rec.Actor)
	target := w.Object(targetID)
	if actor == nil || target == nil {
		return false
	}
	if actor.Type != types.ObjectLink || target.Type != types.ObjectLink {
		return false
	}
	amount := actor.StoreAmount(types.ResourceEnergy)
	if n, ok := rec.NumberField("amount"); ok && int(n) < amount {
		amount = int(n)
	}
	if free := storeFree(target); free >= 0 && free < amount {
		amount = free
	}
	if amount <= 0 {
		return false
	}
	moveResource(actor, target, types.ResourceEnergy, amount)
	actor.Cooldown = 1
	return true
}

// applyRunReaction converts the two source labs' reagents into the reaction
// product inside the actor's lab.
func applyRunReaction(w *MutationWriter, rec intent.Record) bool {
	lab1ID, ok1 := rec.TextField("lab1Id")
	lab2ID, ok2 := rec.TextField("lab2Id")
	if !ok1 || !ok2 {
		return false
	}
	actor := w.Object(rec.Actor)
	lab1 := w.Object(lab1ID)
	lab2 := w.Object(lab2ID)
	if actor == nil || lab1 == nil || lab2 == nil {
		return false
	}
	if actor.Type != types.ObjectLab || lab1.Type != types.ObjectLab || lab2.Type != types.ObjectLab {
		return false
	}
	if actor.Cooldown > 0 {
		return false
	}
	reagent1 := labReagent(lab1)
	reagent2 := labReagent(lab2)
	if reagent1 == "" || reagent2 == "" {
		return false
	}
	product, known := types.ReactionProduct(reagent1, reagent2)
	if !known {
		return false
	}
	if lab1.StoreAmount(reagent1) < reactionAmount || lab2.StoreAmount(reagent2) < reactionAmount {
		return false
	}
	if free := storeFree(actor); free >= 0 && free < reactionAmount {
		return false
	}
	takeResource(lab1, reagent1, reactionAmount)
	takeResource(lab2, reagent2, reactionAmount)
	addResource(actor, product, reactionAmount)
	actor.Cooldown = labCooldown
	return true
}

// applyHarvest moves energy from a source into the actor's store. A source
// without a store is treated as unbounded.
func applyHarvest(w *MutationWriter, rec intent.Record) bool {
	targetID, ok := rec.TargetID()
	if !ok {
		return false
	}
	actor := w.Object(rec.Actor)
	source := w.Object(targetID)
	if actor == nil || source == nil {
		return false
	}
	amount := defaultHarvestYield
	if n, ok := rec.NumberField("amount"); ok {
		amount = int(n)
	}
	if source.Store != nil && source.StoreAmount(types.ResourceEnergy) < amount {
		amount = source.StoreAmount(types.ResourceEnergy)
	}
	if free := storeFree(actor); free >= 0 && free < amount {
		amount = free
	}
	if amount <= 0 {
		return false
	}
	if source.Store != nil {
		takeResource(source, types.ResourceEnergy, amount)
	}
	addResource(actor, types.ResourceEnergy, amount)
	return true
}

func targetOrActor(rec intent.Record) string {
	if targetID, ok := rec.TargetID(); ok {
		return targetID
	}
	return rec.Actor
}

// storeFree returns the target's free capacity, or -1 for an uncapped store.
func storeFree(obj *types.Object) int {
	if obj.StoreCapacity <= 0 {
		return -1
	}
	total := 0
	for _, amount := range obj.Store {
		total += amount
	}
	return obj.StoreCapacity - total
}

// labReagent returns the lab's loaded mineral: the first held resource that
// is not energy.
func labReagent(lab *types.Object) string {
	for resource, amount := range lab.Store {
		if resource != types.ResourceEnergy && amount > 0 {
			return resource
		}
	}
	return ""
}

func moveResource(from, to *types.Object, resource string, amount int) {
	takeResource(from, resource, amount)
	addResource(to, resource, amount)
}

func takeResource(obj *types.Object, resource string, amount int) {
	if obj.Store == nil {
		return
	}
	obj.Store[resource] -= amount
	if obj.Store[resource] <= 0 {
		delete(obj.Store, resource)
	}
}

func addResource(obj *types.Object, resource string, amount int) {
	if obj.Store == nil {
		obj.Store = map[string]int{}
	}
	obj.Store[resource] += amount
}
