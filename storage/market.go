package storage

import (
	"context"
	"sort"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/burrowgame/burrow/types"
)

// MarketStorage holds the shard-wide order book. Orders live in one hash
// keyed by order id; the book is small enough that global processing reads
// it whole.
type MarketStorage struct {
	Client *redis.Client
}

func NewMarketStorage(client *redis.Client) MarketStorage {
	return MarketStorage{Client: client}
}

func (r *MarketStorage) SaveOrder(ctx context.Context, order *types.MarketOrder) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return eris.Wrapf(err, "failed to marshal order %q", order.ID)
	}
	err = r.Client.HSet(ctx, marketOrdersKey(), order.ID, raw).Err()
	return eris.Wrapf(err, "failed to store order %q", order.ID)
}

func (r *MarketStorage) GetOrder(ctx context.Context, id string) (*types.MarketOrder, error) {
	raw, err := r.Client.HGet(ctx, marketOrdersKey(), id).Result()
	if eris.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read order %q", id)
	}
	order := new(types.MarketOrder)
	if err := json.Unmarshal([]byte(raw), order); err != nil {
		return nil, eris.Wrapf(err, "corrupt order %q", id)
	}
	return order, nil
}

func (r *MarketStorage) DeleteOrder(ctx context.Context, id string) error {
	err := r.Client.HDel(ctx, marketOrdersKey(), id).Err()
	return eris.Wrapf(err, "failed to delete order %q", id)
}

// Orders returns the full order book sorted by id.
func (r *MarketStorage) Orders(ctx context.Context) ([]*types.MarketOrder, error) {
	raw, err := r.Client.HGetAll(ctx, marketOrdersKey()).Result()
	if err != nil {
		return nil, eris.Wrap(err, "failed to read order book")
	}
	orders := make([]*types.MarketOrder, 0, len(raw))
	for id, data := range raw {
		order := new(types.MarketOrder)
		if err := json.Unmarshal([]byte(data), order); err != nil {
			return nil, eris.Wrapf(err, "corrupt order %q", id)
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

// PowerStorage holds per-tenant power creep rosters.
type PowerStorage struct {
	Client *redis.Client
}

func NewPowerStorage(client *redis.Client) PowerStorage {
	return PowerStorage{Client: client}
}

func (r *PowerStorage) SavePowerCreep(ctx context.Context, creep *types.PowerCreep) error {
	raw, err := json.Marshal(creep)
	if err != nil {
		return eris.Wrapf(err, "failed to marshal power creep %q", creep.Name)
	}
	err = r.Client.HSet(ctx, powerCreepsKey(creep.Tenant), creep.Name, raw).Err()
	return eris.Wrapf(err, "failed to store power creep %q", creep.Name)
}

func (r *PowerStorage) DeletePowerCreep(ctx context.Context, tenant, name string) error {
	err := r.Client.HDel(ctx, powerCreepsKey(tenant), name).Err()
	return eris.Wrapf(err, "failed to delete power creep %q", name)
}

// PowerCreeps returns the tenant's roster sorted by name.
func (r *PowerStorage) PowerCreeps(ctx context.Context, tenant string) ([]*types.PowerCreep, error) {
	raw, err := r.Client.HGetAll(ctx, powerCreepsKey(tenant)).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read power creeps for %q", tenant)
	}
	creeps := make([]*types.PowerCreep, 0, len(raw))
	for name, data := range raw {
		creep := new(types.PowerCreep)
		if err := json.Unmarshal([]byte(data), creep); err != nil {
			return nil, eris.Wrapf(err, "corrupt power creep %q", name)
		}
		creeps = append(creeps, creep)
	}
	sort.Slice(creeps, func(i, j int) bool { return creeps[i].Name < creeps[j].Name })
	return creeps, nil
}
