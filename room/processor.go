package room

import (
	"context"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/burrowgame/burrow/intent"
	"github.com/burrowgame/burrow/types"
)

// Store is the slice of the persistent state store the processor consumes.
type Store interface {
	Snapshot(ctx context.Context, room string) (*types.RoomSnapshot, error)
	TakeIntentBatch(ctx context.Context, room string) ([]types.IntentEnvelope, error)
	ApplyMutations(ctx context.Context, room string, upserts map[string]*types.Object, removes []string) error
	SaveMapView(ctx context.Context, room string, view []byte) error
	SaveEventLog(ctx context.Context, room string, events []byte) error
	SaveHistory(ctx context.Context, room string, tick uint64, blob []byte) error
	UploadChunk(ctx context.Context, room string, baseTick uint64, chunkSize uint64) error
}

// Notifier delivers best-effort per-tenant notifications.
type Notifier interface {
	Notify(ctx context.Context, n types.Notification) error
}

// notificationGroupInterval is the client-side coalescing hint, in minutes,
// attached to per-tick processing notifications.
const notificationGroupInterval = 5

// Processor consumes one room's pending intents per tick and mutates room
// state through a MutationWriter. A room pass never touches another room's
// objects.
type Processor struct {
	store     Store
	notifier  Notifier
	pipeline  *intent.Pipeline
	chunkSize uint64
	log       zerolog.Logger
}

func NewProcessor(store Store, notifier Notifier, chunkSize uint64) *Processor {
	return &Processor{
		store:     store,
		notifier:  notifier,
		pipeline:  intent.NewPipeline(),
		chunkSize: chunkSize,
		log:       zlog.With().Str("component", "room-processor").Logger(),
	}
}

// ProcessRoom runs one room's pass for the current tick: validate and apply
// the pending intent batch, commit the mutations, then record history and
// derived views. With no pending batch the pass skips straight to history.
func (p *Processor) ProcessRoom(ctx context.Context, name string) error {
	snap, err := p.store.Snapshot(ctx, name)
	if err != nil {
		return err
	}
	batch, err := p.store.TakeIntentBatch(ctx, name)
	if err != nil {
		return err
	}

	writer := NewMutationWriter(snap)
	if len(batch) > 0 {
		if err := p.applyBatch(ctx, name, snap, writer, batch); err != nil {
			return err
		}
	}

	return p.recordHistory(ctx, name, snap.Tick, writer.FinalObjects())
}

func (p *Processor) applyBatch(
	ctx context.Context,
	name string,
	snap *types.RoomSnapshot,
	writer *MutationWriter,
	batch []types.IntentEnvelope,
) error {
	events := make([]types.IntentEvent, 0, len(batch))
	counts := map[string]int{}

	for _, env := range batch {
		rec := recordFromEnvelope(env)
		if res := p.pipeline.Validate(rec, snap); !res.OK {
			p.log.Debug().
				Str("room", name).
				Str("tenant", env.Tenant).
				Str("intent", env.Name).
				Str("reason", res.Reason).
				Msg("Dropped intent")
			continue
		}
		if !applyIntent(writer, env, rec) {
			continue
		}
		events = append(events, types.IntentEvent{
			Tenant:   env.Tenant,
			ObjectID: env.ObjectID,
			Payload:  env,
		})
		counts[env.Tenant]++
	}

	if err := p.store.ApplyMutations(ctx, name, writer.Upserts(), writer.Removes()); err != nil {
		return err
	}
	if err := p.recordEvents(ctx, name, snap.Tick, events, writer.FinalObjects()); err != nil {
		return err
	}
	p.notifyTenants(ctx, name, counts)
	return nil
}

type eventLogEntry struct {
	Tick   uint64              `json:"tick"`
	Events []types.IntentEvent `json:"events"`
}

type mapView struct {
	Tick    uint64          `json:"tick"`
	Objects []mapViewObject `json:"objects"`
}

type mapViewObject struct {
	ID    string `json:"_id"`
	Type  string `json:"type"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Owner string `json:"user,omitempty"`
}

func (p *Processor) recordEvents(
	ctx context.Context, name string, tick uint64, events []types.IntentEvent, final map[string]*types.Object,
) error {
	logBlob, err := json.Marshal(eventLogEntry{Tick: tick, Events: events})
	if err != nil {
		return eris.Wrapf(err, "failed to marshal event log for %q", name)
	}
	if err := p.store.SaveEventLog(ctx, name, logBlob); err != nil {
		return err
	}

	view := mapView{Tick: tick, Objects: make([]mapViewObject, 0, len(final))}
	for _, obj := range final {
		view.Objects = append(view.Objects, mapViewObject{
			ID: obj.ID, Type: obj.Type, X: obj.X, Y: obj.Y, Owner: obj.Owner,
		})
	}
	sort.Slice(view.Objects, func(i, j int) bool { return view.Objects[i].ID < view.Objects[j].ID })
	viewBlob, err := json.Marshal(view)
	if err != nil {
		return eris.Wrapf(err, "failed to marshal map view for %q", name)
	}
	return p.store.SaveMapView(ctx, name, viewBlob)
}

func (p *Processor) notifyTenants(ctx context.Context, name string, counts map[string]int) {
	for tenant, count := range counts {
		err := p.notifier.Notify(ctx, types.Notification{
			Tenant:        tenant,
			Message:       fmt.Sprintf("%d intents processed in %s", count, name),
			GroupInterval: notificationGroupInterval,
		})
		if err != nil {
			// Best effort only; a sink outage must not fail the room pass.
			p.log.Warn().Err(err).Str("tenant", tenant).Msg("Failed to send processing notification")
		}
	}
}

type historySnapshot struct {
	Room    string                   `json:"room"`
	Tick    uint64                   `json:"tick"`
	Objects map[string]*types.Object `json:"objects"`
	Tenants []string                 `json:"users"`
}

func (p *Processor) recordHistory(
	ctx context.Context, name string, tick uint64, final map[string]*types.Object,
) error {
	tenantSet := map[string]struct{}{}
	for _, obj := range final {
		if obj.Owner != "" {
			tenantSet[obj.Owner] = struct{}{}
		}
	}
	tenants := make([]string, 0, len(tenantSet))
	for tenant := range tenantSet {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)

	blob, err := json.Marshal(historySnapshot{
		Room:    name,
		Tick:    tick,
		Objects: final,
		Tenants: tenants,
	})
	if err != nil {
		return eris.Wrapf(err, "failed to marshal history for %q", name)
	}
	if err := p.store.SaveHistory(ctx, name, tick, blob); err != nil {
		return err
	}

	if p.chunkSize > 0 && tick > 0 && tick%p.chunkSize == 0 {
		baseTick := uint64(0)
		if tick >= p.chunkSize {
			baseTick = tick - p.chunkSize
		}
		if err := p.store.UploadChunk(ctx, name, baseTick, p.chunkSize); err != nil {
			return err
		}
	}
	return nil
}

func recordFromEnvelope(env types.IntentEnvelope) intent.Record {
	args := make([]intent.Fields, 0, len(env.Args))
	for _, raw := range env.Args {
		args = append(args, intent.FieldsFromAny(raw))
	}
	return intent.Record{
		Tenant: env.Tenant,
		Actor:  env.ObjectID,
		Name:   env.Name,
		Args:   args,
	}
}
