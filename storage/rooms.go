package storage

import (
	"context"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/burrowgame/burrow/types"
)

// RoomStorage holds room object documents and per-room intent batches. A
// room's objects live in one hash keyed by object id; all mutation for a
// room pass is committed through a single pipeline so readers never observe
// a half-applied pass.
type RoomStorage struct {
	Client *redis.Client
}

func NewRoomStorage(client *redis.Client) RoomStorage {
	return RoomStorage{Client: client}
}

func (r *RoomStorage) ActiveRooms(ctx context.Context) ([]string, error) {
	rooms, err := r.Client.SMembers(ctx, activeRoomsKey()).Result()
	if err != nil {
		return nil, eris.Wrap(err, "failed to read active rooms")
	}
	sort.Strings(rooms)
	return rooms, nil
}

func (r *RoomStorage) AddActiveRoom(ctx context.Context, room string) error {
	err := r.Client.SAdd(ctx, activeRoomsKey(), room).Err()
	return eris.Wrapf(err, "failed to activate room %q", room)
}

func (r *RoomStorage) PutObject(ctx context.Context, obj *types.Object) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return eris.Wrapf(err, "failed to marshal object %q", obj.ID)
	}
	err = r.Client.HSet(ctx, roomObjectsKey(obj.Room), obj.ID, raw).Err()
	return eris.Wrapf(err, "failed to store object %q in %q", obj.ID, obj.Room)
}

func (r *RoomStorage) GetObject(ctx context.Context, room, id string) (*types.Object, error) {
	raw, err := r.Client.HGet(ctx, roomObjectsKey(room), id).Result()
	if eris.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read object %q in %q", id, room)
	}
	obj := new(types.Object)
	if err := json.Unmarshal([]byte(raw), obj); err != nil {
		return nil, eris.Wrapf(err, "corrupt object %q in %q", id, room)
	}
	return obj, nil
}

// Snapshot loads the room's full object map together with the current game
// time. This is the authoritative read view for one processing pass.
func (r *RoomStorage) Snapshot(ctx context.Context, room string) (*types.RoomSnapshot, error) {
	raw, err := r.Client.HGetAll(ctx, roomObjectsKey(room)).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read objects for %q", room)
	}
	tickRaw, err := r.Client.Get(ctx, gameTimeKey()).Result()
	if err != nil && !eris.Is(err, redis.Nil) {
		return nil, eris.Wrap(err, "failed to read game time")
	}
	var tick uint64
	if tickRaw != "" {
		tick, _ = strconv.ParseUint(tickRaw, 10, 64)
	}

	snap := &types.RoomSnapshot{
		Name:    room,
		Tick:    tick,
		Objects: make(map[string]*types.Object, len(raw)),
	}
	for id, data := range raw {
		obj := new(types.Object)
		if err := json.Unmarshal([]byte(data), obj); err != nil {
			return nil, eris.Wrapf(err, "corrupt object %q in %q", id, room)
		}
		snap.Objects[id] = obj
	}
	return snap, nil
}

// AppendIntents adds intent envelopes to the room's pending batch.
func (r *RoomStorage) AppendIntents(ctx context.Context, room string, envelopes []types.IntentEnvelope) error {
	if len(envelopes) == 0 {
		return nil
	}
	encoded := make([]any, 0, len(envelopes))
	for i := range envelopes {
		raw, err := json.Marshal(envelopes[i])
		if err != nil {
			return eris.Wrapf(err, "failed to marshal intent for %q", room)
		}
		encoded = append(encoded, raw)
	}
	err := r.Client.RPush(ctx, roomIntentsKey(room), encoded...).Err()
	return eris.Wrapf(err, "failed to append intents for %q", room)
}

// AppendGlobalIntents queues room-independent intents (market orders,
// power-creep lifecycle) for the main loop's global processing stage.
func (r *RoomStorage) AppendGlobalIntents(ctx context.Context, envelopes []types.IntentEnvelope) error {
	if len(envelopes) == 0 {
		return nil
	}
	encoded := make([]any, 0, len(envelopes))
	for i := range envelopes {
		raw, err := json.Marshal(envelopes[i])
		if err != nil {
			return eris.Wrap(err, "failed to marshal global intent")
		}
		encoded = append(encoded, raw)
	}
	err := r.Client.RPush(ctx, globalIntentsKey(), encoded...).Err()
	return eris.Wrap(err, "failed to append global intents")
}

// TakeGlobalIntents atomically reads and clears the global intent batch.
func (r *RoomStorage) TakeGlobalIntents(ctx context.Context) ([]types.IntentEnvelope, error) {
	pipe := r.Client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, globalIntentsKey(), 0, -1)
	pipe.Del(ctx, globalIntentsKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, eris.Wrap(err, "failed to take global intent batch")
	}
	raw := rangeCmd.Val()
	if len(raw) == 0 {
		return nil, nil
	}
	envelopes := make([]types.IntentEnvelope, 0, len(raw))
	for _, data := range raw {
		var env types.IntentEnvelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			return nil, eris.Wrap(err, "corrupt global intent batch entry")
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

// TakeIntentBatch atomically reads and clears the room's pending batch.
// Returns nil when no batch exists.
func (r *RoomStorage) TakeIntentBatch(ctx context.Context, room string) ([]types.IntentEnvelope, error) {
	pipe := r.Client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, roomIntentsKey(room), 0, -1)
	pipe.Del(ctx, roomIntentsKey(room))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, eris.Wrapf(err, "failed to take intent batch for %q", room)
	}
	raw := rangeCmd.Val()
	if len(raw) == 0 {
		return nil, nil
	}
	envelopes := make([]types.IntentEnvelope, 0, len(raw))
	for _, data := range raw {
		var env types.IntentEnvelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			return nil, eris.Wrapf(err, "corrupt intent batch entry for %q", room)
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

// ApplyMutations commits one room pass's staged mutations atomically:
// upserted objects overwrite their hash fields and removed ids are deleted,
// all in a single pipeline.
func (r *RoomStorage) ApplyMutations(
	ctx context.Context, room string, upserts map[string]*types.Object, removes []string,
) error {
	if len(upserts) == 0 && len(removes) == 0 {
		return nil
	}
	pipe := r.Client.TxPipeline()
	if len(upserts) > 0 {
		flat := make([]any, 0, len(upserts)*2)
		for id, obj := range upserts {
			raw, err := json.Marshal(obj)
			if err != nil {
				return eris.Wrapf(err, "failed to marshal object %q in %q", id, room)
			}
			flat = append(flat, id, raw)
		}
		pipe.HSet(ctx, roomObjectsKey(room), flat...)
	}
	if len(removes) > 0 {
		fields := make([]string, len(removes))
		copy(fields, removes)
		pipe.HDel(ctx, roomObjectsKey(room), fields...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return eris.Wrapf(err, "failed to commit mutations for %q", room)
	}
	return nil
}

type roomStatus struct {
	Active   bool   `json:"active"`
	LastTick uint64 `json:"lastTick"`
}

// SetRoomStatus records the room's activity index entry for the given tick;
// the main loop's UpdateRoomIndexes stage writes one entry per active room.
func (r *RoomStorage) SetRoomStatus(ctx context.Context, room string, tick uint64) error {
	raw, err := json.Marshal(roomStatus{Active: true, LastTick: tick})
	if err != nil {
		return eris.Wrap(err, "failed to marshal room status")
	}
	err = r.Client.HSet(ctx, roomStatusKey(), room, raw).Err()
	return eris.Wrapf(err, "failed to update status for %q", room)
}

func (r *RoomStorage) SaveMapView(ctx context.Context, room string, view []byte) error {
	err := r.Client.Set(ctx, roomMapViewKey(room), view, 0).Err()
	return eris.Wrapf(err, "failed to save map view for %q", room)
}

func (r *RoomStorage) SaveEventLog(ctx context.Context, room string, events []byte) error {
	err := r.Client.RPush(ctx, roomEventLogKey(room), events).Err()
	return eris.Wrapf(err, "failed to append event log for %q", room)
}
