// Package room implements per-room intent processing: each pass validates
// the room's pending intent batch and applies the surviving intents as
// staged mutations that commit atomically at the end of the pass.
package room

import (
	"sort"

	"github.com/burrowgame/burrow/types"
)

// MutationWriter batches upsert/patch/remove operations against one room's
// snapshot. Reads through the writer observe earlier staged writes, so
// intents within a pass apply in arrival order per object. Nothing touches
// the store until the processor commits the batch.
type MutationWriter struct {
	snap    *types.RoomSnapshot
	staged  map[string]*types.Object
	removed map[string]struct{}
}

func NewMutationWriter(snap *types.RoomSnapshot) *MutationWriter {
	return &MutationWriter{
		snap:    snap,
		staged:  map[string]*types.Object{},
		removed: map[string]struct{}{},
	}
}

// Object returns a mutable staged copy of the object, creating one from the
// snapshot on first access. The copy is registered for upsert; mutating it
// is enough to have the change committed. Returns nil for unknown or removed
// ids.
func (w *MutationWriter) Object(id string) *types.Object {
	if _, gone := w.removed[id]; gone {
		return nil
	}
	if obj, ok := w.staged[id]; ok {
		return obj
	}
	src := w.snap.Get(id)
	if src == nil {
		return nil
	}
	obj := src.Clone()
	w.staged[id] = obj
	return obj
}

// Upsert stages a full object write.
func (w *MutationWriter) Upsert(obj *types.Object) {
	delete(w.removed, obj.ID)
	w.staged[obj.ID] = obj
}

// Patch shallow-merges fields over the object's current staged state.
func (w *MutationWriter) Patch(id string, fields map[string]any) error {
	obj := w.Object(id)
	if obj == nil {
		return nil
	}
	patched, err := obj.ApplyPatch(fields)
	if err != nil {
		return err
	}
	w.staged[id] = patched
	return nil
}

// Remove stages an object deletion.
func (w *MutationWriter) Remove(id string) {
	delete(w.staged, id)
	w.removed[id] = struct{}{}
}

// Upserts returns the staged writes to commit.
func (w *MutationWriter) Upserts() map[string]*types.Object {
	return w.staged
}

// Removes returns the staged deletions to commit, in stable order.
func (w *MutationWriter) Removes() []string {
	ids := make([]string, 0, len(w.removed))
	for id := range w.removed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FinalObjects returns the room's object map as it will look after commit:
// the snapshot with staged writes applied and removals dropped.
func (w *MutationWriter) FinalObjects() map[string]*types.Object {
	final := make(map[string]*types.Object, len(w.snap.Objects))
	for id, obj := range w.snap.Objects {
		if _, gone := w.removed[id]; gone {
			continue
		}
		final[id] = obj
	}
	for id, obj := range w.staged {
		final[id] = obj
	}
	return final
}
