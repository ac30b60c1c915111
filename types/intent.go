package types

// IntentEnvelope is one pending intent as stored in a room's batch: the
// raising tenant, the acting object, and the raw argument sets as decoded
// JSON. The validation pipeline converts the raw args into typed fields.
type IntentEnvelope struct {
	Tenant   string           `json:"user"`
	ObjectID string           `json:"objectId"`
	Name     string           `json:"name"`
	Args     []map[string]any `json:"args"`
}

// IntentEvent is one applied intent in a room's per-tick event log, in apply
// order.
type IntentEvent struct {
	Tenant   string `json:"user"`
	ObjectID string `json:"objectId"`
	Payload  any    `json:"payload"`
}
