// Package global implements the processors that run in the tick's global
// stage, after every room pass has committed: the market order book, the
// power creep roster, and inter-room terminal transfers. Each processor
// consumes its own intent names from the shared global batch and ignores
// the rest; a malformed intent is skipped, never fatal.
package global

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/burrowgame/burrow/intent"
	"github.com/burrowgame/burrow/types"
)

// OrderStore is the slice of storage the market processor needs.
type OrderStore interface {
	SaveOrder(ctx context.Context, order *types.MarketOrder) error
	GetOrder(ctx context.Context, id string) (*types.MarketOrder, error)
	DeleteOrder(ctx context.Context, id string) error
}

type Market struct {
	store OrderStore
	log   zerolog.Logger
}

func NewMarket(store OrderStore, log zerolog.Logger) *Market {
	return &Market{store: store, log: log}
}

func (m *Market) Name() string { return "market" }

func (m *Market) Process(ctx context.Context, tick uint64, intents []types.IntentEnvelope) error {
	for i := range intents {
		env := &intents[i]
		var err error
		switch env.Name {
		case "createOrder":
			err = m.createOrder(ctx, tick, env)
		case "cancelOrder":
			err = m.cancelOrder(ctx, env)
		case "changeOrderPrice":
			err = m.changeOrderPrice(ctx, env)
		case "extendOrder":
			err = m.extendOrder(ctx, env)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Market) createOrder(ctx context.Context, tick uint64, env *types.IntentEnvelope) error {
	fields := firstArgs(env)
	orderType, _ := fields.Text("type")
	if orderType != types.OrderBuy && orderType != types.OrderSell {
		m.skip(env, "bad order type")
		return nil
	}
	resource, _ := fields.Text("resourceType")
	if !types.IsKnownResource(resource) {
		m.skip(env, "unknown resource")
		return nil
	}
	price, _ := fields.Number("price")
	amount, _ := fields.Number("amount")
	if price <= 0 || amount <= 0 {
		m.skip(env, "non-positive price or amount")
		return nil
	}
	room, _ := fields.Text("roomName")
	return m.store.SaveOrder(ctx, &types.MarketOrder{
		ID:           uuid.NewString(),
		Tenant:       env.Tenant,
		Type:         orderType,
		ResourceType: resource,
		Price:        price,
		Amount:       int(amount),
		Room:         room,
		Created:      tick,
	})
}

func (m *Market) cancelOrder(ctx context.Context, env *types.IntentEnvelope) error {
	order, err := m.ownedOrder(ctx, env)
	if err != nil || order == nil {
		return err
	}
	return m.store.DeleteOrder(ctx, order.ID)
}

func (m *Market) changeOrderPrice(ctx context.Context, env *types.IntentEnvelope) error {
	order, err := m.ownedOrder(ctx, env)
	if err != nil || order == nil {
		return err
	}
	price, _ := firstArgs(env).Number("newPrice")
	if price <= 0 {
		m.skip(env, "non-positive price")
		return nil
	}
	order.Price = price
	return m.store.SaveOrder(ctx, order)
}

func (m *Market) extendOrder(ctx context.Context, env *types.IntentEnvelope) error {
	order, err := m.ownedOrder(ctx, env)
	if err != nil || order == nil {
		return err
	}
	add, _ := firstArgs(env).Number("addAmount")
	if add <= 0 {
		m.skip(env, "non-positive amount")
		return nil
	}
	order.Amount += int(add)
	return m.store.SaveOrder(ctx, order)
}

// ownedOrder resolves the intent's order and checks the caller owns it.
// Returns nil without error when the intent should be skipped.
func (m *Market) ownedOrder(ctx context.Context, env *types.IntentEnvelope) (*types.MarketOrder, error) {
	id, ok := firstArgs(env).Text("orderId")
	if !ok {
		m.skip(env, "missing orderId")
		return nil, nil
	}
	order, err := m.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil || order.Tenant != env.Tenant {
		m.skip(env, "order not found or not owned")
		return nil, nil
	}
	return order, nil
}

func (m *Market) skip(env *types.IntentEnvelope, reason string) {
	m.log.Debug().
		Str("tenant", env.Tenant).
		Str("intent", env.Name).
		Str("reason", reason).
		Msg("skipped market intent")
}

// firstArgs returns the intent's first argument set as typed fields.
func firstArgs(env *types.IntentEnvelope) intent.Fields {
	if len(env.Args) == 0 {
		return intent.Fields{}
	}
	return intent.FieldsFromAny(env.Args[0])
}
