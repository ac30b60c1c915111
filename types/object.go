package types

import (
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// Object type names the core cares about. Game-rule packages may define more;
// the mutation pipeline treats unknown types generically.
const (
	ObjectController = "controller"
	ObjectRampart    = "rampart"
	ObjectCreep      = "creep"
	ObjectSpawn      = "spawn"
	ObjectLink       = "link"
	ObjectLab        = "lab"
	ObjectSource     = "source"
)

// Object is one room object document. All mutation goes through a
// MutationWriter; an Object held by a RoomSnapshot must be treated as
// read-only by validators.
type Object struct {
	ID            string         `json:"_id"`
	Type          string         `json:"type"`
	Room          string         `json:"room"`
	X             int            `json:"x"`
	Y             int            `json:"y"`
	Owner         string         `json:"user,omitempty"`
	Hits          int            `json:"hits,omitempty"`
	HitsMax       int            `json:"hitsMax,omitempty"`
	Spawning      bool           `json:"spawning,omitempty"`
	// Store must survive round-trips even when empty: the state
	// validator treats a nil store as "cannot hold resources".
	Store         map[string]int `json:"store"`
	StoreCapacity int            `json:"storeCapacity,omitempty"`
	Level         int            `json:"level,omitempty"`
	Reservation   string         `json:"reservation,omitempty"`
	SafeModeUntil uint64         `json:"safeMode,omitempty"`
	IsPublic      bool           `json:"isPublic,omitempty"`
	Cooldown      int            `json:"cooldown,omitempty"`
}

// Alive reports whether the object can act. Objects without hit points
// (hitsMax of zero) are indestructible and always alive.
func (o *Object) Alive() bool {
	return o.HitsMax == 0 || o.Hits > 0
}

func (o *Object) StoreAmount(resource string) int {
	if o.Store == nil {
		return 0
	}
	return o.Store[resource]
}

// Clone returns a deep copy, used when staging mutations against snapshot
// objects.
func (o *Object) Clone() *Object {
	cp := *o
	if o.Store != nil {
		cp.Store = make(map[string]int, len(o.Store))
		for k, v := range o.Store {
			cp.Store[k] = v
		}
	}
	return &cp
}

// ApplyPatch shallow-merges the given fields over the object's JSON form and
// returns the patched copy. Unknown fields are dropped by the decode, which
// matches the document store's behavior for unrecognized keys.
func (o *Object) ApplyPatch(fields map[string]any) (*Object, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal object for patch")
	}
	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrap(err, "failed to unmarshal object for patch")
	}
	for k, v := range fields {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal patched object")
	}
	patched := new(Object)
	if err := json.Unmarshal(merged, patched); err != nil {
		return nil, eris.Wrap(err, "failed to unmarshal patched object")
	}
	return patched, nil
}

// RoomSnapshot is the authoritative read view of one room at the start of a
// processing pass.
type RoomSnapshot struct {
	Name    string
	Tick    uint64
	Objects map[string]*Object
}

func (s *RoomSnapshot) Get(id string) *Object {
	if s == nil || s.Objects == nil {
		return nil
	}
	return s.Objects[id]
}

// Controller returns the room's controller object, or nil for a neutral room.
func (s *RoomSnapshot) Controller() *Object {
	for _, obj := range s.Objects {
		if obj.Type == ObjectController {
			return obj
		}
	}
	return nil
}

// RampartAt returns the rampart covering the given position, if any.
func (s *RoomSnapshot) RampartAt(x, y int) *Object {
	for _, obj := range s.Objects {
		if obj.Type == ObjectRampart && obj.X == x && obj.Y == y {
			return obj
		}
	}
	return nil
}
