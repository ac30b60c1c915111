package intent

// Record is the unit the validators operate on: a named action raised by one
// tenant's object, with an ordered list of argument sets.
type Record struct {
	Tenant string
	Actor  string // acting object id
	Name   string
	Args   []Fields
}

// Field returns the first occurrence of the named field across the ordered
// argument sets.
func (r Record) Field(name string) (Value, bool) {
	for _, args := range r.Args {
		if v, ok := args[name]; ok {
			return v, true
		}
	}
	return Value{}, false
}

func (r Record) TextField(name string) (string, bool) {
	v, ok := r.Field(name)
	if !ok {
		return "", false
	}
	return v.Text()
}

func (r Record) NumberField(name string) (float64, bool) {
	v, ok := r.Field(name)
	if !ok {
		return 0, false
	}
	return v.Number()
}

// TargetID returns the intent's target object id, if one was supplied.
func (r Record) TargetID() (string, bool) {
	return r.TextField("targetId")
}

// Result is the outcome of one validator, or of the whole pipeline. A failed
// intent is dropped with its reason code; that is steady-state behavior, not
// an error.
type Result struct {
	OK     bool
	Reason string
}

func pass() Result {
	return Result{OK: true}
}

func fail(reason string) Result {
	return Result{Reason: reason}
}

// Reason codes reported for dropped intents.
const (
	ReasonInvalidArgs       = "invalidArgs"
	ReasonInvalidActor      = "invalidActor"
	ReasonInvalidTarget     = "invalidTarget"
	ReasonNotInRange        = "notInRange"
	ReasonNotOwner          = "notOwner"
	ReasonOwnController     = "ownController"
	ReasonHostileController = "hostileController"
	ReasonSafeMode          = "safeMode"
	ReasonRampartProtected  = "rampartProtected"
	ReasonHostileRoom       = "hostileRoom"
)
