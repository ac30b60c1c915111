package global

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/burrowgame/burrow/types"
)

const (
	powerCreepClassOperator = "operator"
	maxPowerCreepLevel      = 25
)

// RosterStore is the slice of storage the power creep processor needs.
type RosterStore interface {
	SavePowerCreep(ctx context.Context, creep *types.PowerCreep) error
	DeletePowerCreep(ctx context.Context, tenant, name string) error
	PowerCreeps(ctx context.Context, tenant string) ([]*types.PowerCreep, error)
}

// PowerCreeps maintains each tenant's power creep roster. Creation,
// upgrades, and deletion are account-level operations and only take effect
// here, between ticks.
type PowerCreeps struct {
	store RosterStore
	log   zerolog.Logger
}

func NewPowerCreeps(store RosterStore, log zerolog.Logger) *PowerCreeps {
	return &PowerCreeps{store: store, log: log}
}

func (p *PowerCreeps) Name() string { return "power-creeps" }

func (p *PowerCreeps) Process(ctx context.Context, _ uint64, intents []types.IntentEnvelope) error {
	for i := range intents {
		env := &intents[i]
		var err error
		switch env.Name {
		case "createPowerCreep":
			err = p.create(ctx, env)
		case "upgradePowerCreep":
			err = p.upgrade(ctx, env)
		case "deletePowerCreep":
			err = p.remove(ctx, env)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *PowerCreeps) create(ctx context.Context, env *types.IntentEnvelope) error {
	fields := firstArgs(env)
	name, ok := fields.Text("name")
	if !ok || name == "" {
		p.skip(env, "missing name")
		return nil
	}
	class, _ := fields.Text("className")
	if class != powerCreepClassOperator {
		p.skip(env, "unknown class")
		return nil
	}
	existing, err := p.find(ctx, env.Tenant, name)
	if err != nil {
		return err
	}
	if existing != nil {
		p.skip(env, "name taken")
		return nil
	}
	return p.store.SavePowerCreep(ctx, &types.PowerCreep{
		Name:   name,
		Tenant: env.Tenant,
		Class:  class,
		Level:  0,
	})
}

func (p *PowerCreeps) upgrade(ctx context.Context, env *types.IntentEnvelope) error {
	name, _ := firstArgs(env).Text("name")
	creep, err := p.find(ctx, env.Tenant, name)
	if err != nil {
		return err
	}
	if creep == nil {
		p.skip(env, "unknown power creep")
		return nil
	}
	if creep.Level >= maxPowerCreepLevel {
		p.skip(env, "level cap reached")
		return nil
	}
	creep.Level++
	return p.store.SavePowerCreep(ctx, creep)
}

func (p *PowerCreeps) remove(ctx context.Context, env *types.IntentEnvelope) error {
	name, _ := firstArgs(env).Text("name")
	creep, err := p.find(ctx, env.Tenant, name)
	if err != nil {
		return err
	}
	if creep == nil {
		p.skip(env, "unknown power creep")
		return nil
	}
	// A spawned creep must die in its room first.
	if creep.Spawned {
		p.skip(env, "still spawned")
		return nil
	}
	return p.store.DeletePowerCreep(ctx, env.Tenant, name)
}

func (p *PowerCreeps) find(ctx context.Context, tenant, name string) (*types.PowerCreep, error) {
	creeps, err := p.store.PowerCreeps(ctx, tenant)
	if err != nil {
		return nil, err
	}
	for _, creep := range creeps {
		if creep.Name == name {
			return creep, nil
		}
	}
	return nil, nil
}

func (p *PowerCreeps) skip(env *types.IntentEnvelope, reason string) {
	p.log.Debug().
		Str("tenant", env.Tenant).
		Str("intent", env.Name).
		Str("reason", reason).
		Msg("skipped power creep intent")
}
