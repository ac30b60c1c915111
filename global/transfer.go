package global

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/burrowgame/burrow/types"
)

const terminalSendCooldown = 5

// ObjectStore is the slice of storage the transfer processor needs. Unlike
// a room pass, inter-room transfers legitimately touch two rooms' objects;
// that is why they run here and not in the room processor.
type ObjectStore interface {
	GetObject(ctx context.Context, room, id string) (*types.Object, error)
	PutObject(ctx context.Context, obj *types.Object) error
}

// Transfers moves resources between terminals in different rooms.
type Transfers struct {
	store ObjectStore
	log   zerolog.Logger
}

func NewTransfers(store ObjectStore, log zerolog.Logger) *Transfers {
	return &Transfers{store: store, log: log}
}

func (t *Transfers) Name() string { return "inter-room-transfer" }

func (t *Transfers) Process(ctx context.Context, _ uint64, intents []types.IntentEnvelope) error {
	for i := range intents {
		env := &intents[i]
		if env.Name != "send" {
			continue
		}
		if err := t.send(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transfers) send(ctx context.Context, env *types.IntentEnvelope) error {
	fields := firstArgs(env)
	fromRoom, _ := fields.Text("roomName")
	targetRoom, _ := fields.Text("targetRoomName")
	targetID, _ := fields.Text("targetId")
	resource, _ := fields.Text("resourceType")
	amount, _ := fields.Number("amount")

	if fromRoom == "" || targetRoom == "" || targetID == "" || env.ObjectID == "" {
		t.skip(env, "missing endpoint")
		return nil
	}
	if fromRoom == targetRoom {
		t.skip(env, "same-room send")
		return nil
	}
	if !types.IsKnownResource(resource) || amount <= 0 {
		t.skip(env, "bad resource or amount")
		return nil
	}

	source, err := t.store.GetObject(ctx, fromRoom, env.ObjectID)
	if err != nil {
		return err
	}
	if source == nil || source.Type != "terminal" || source.Owner != env.Tenant {
		t.skip(env, "source not an owned terminal")
		return nil
	}
	if source.Cooldown > 0 {
		t.skip(env, "terminal on cooldown")
		return nil
	}
	target, err := t.store.GetObject(ctx, targetRoom, targetID)
	if err != nil {
		return err
	}
	if target == nil || target.Type != "terminal" {
		t.skip(env, "target not a terminal")
		return nil
	}

	moved := int(amount)
	if held := source.StoreAmount(resource); held < moved {
		moved = held
	}
	if target.StoreCapacity > 0 {
		free := target.StoreCapacity
		for _, held := range target.Store {
			free -= held
		}
		if free < moved {
			moved = free
		}
	}
	if moved <= 0 {
		t.skip(env, "nothing to move")
		return nil
	}

	source.Store[resource] -= moved
	if source.Store[resource] == 0 {
		delete(source.Store, resource)
	}
	if target.Store == nil {
		target.Store = map[string]int{}
	}
	target.Store[resource] += moved
	source.Cooldown = terminalSendCooldown

	if err := t.store.PutObject(ctx, source); err != nil {
		return err
	}
	return t.store.PutObject(ctx, target)
}

func (t *Transfers) skip(env *types.IntentEnvelope, reason string) {
	t.log.Debug().
		Str("tenant", env.Tenant).
		Str("intent", env.Name).
		Str("reason", reason).
		Msg("skipped send intent")
}
