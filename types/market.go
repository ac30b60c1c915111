package types

// Order book sides.
const (
	OrderBuy  = "buy"
	OrderSell = "sell"
)

// MarketOrder is one entry in the shard-wide order book.
type MarketOrder struct {
	ID           string  `json:"_id"`
	Tenant       string  `json:"user"`
	Type         string  `json:"type"`
	ResourceType string  `json:"resourceType"`
	Price        float64 `json:"price"`
	Amount       int     `json:"amount"`
	Room         string  `json:"roomName,omitempty"`
	Created      uint64  `json:"created"`
}

// PowerCreep is a tenant-level unit that exists outside any single room
// until spawned.
type PowerCreep struct {
	Name    string `json:"name"`
	Tenant  string `json:"user"`
	Class   string `json:"className"`
	Level   int    `json:"level"`
	Spawned bool   `json:"spawned,omitempty"`
}
