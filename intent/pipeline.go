// Package intent implements the four-stage validation pipeline every intent
// must pass before it may mutate room state: schema, then actor/target state,
// then spatial range, then permission. The pipeline short-circuits on the
// first failure. Validators are independent: one that cannot find the ids or
// fields it needs passes, deferring to whichever validator is authoritative
// for that absence.
package intent

import (
	"github.com/burrowgame/burrow/types"
)

type Validator interface {
	Name() string
	Validate(rec Record, snap *types.RoomSnapshot) Result
}

type Pipeline struct {
	validators []Validator
}

// NewPipeline returns the standard pipeline in its fixed order.
func NewPipeline() *Pipeline {
	return &Pipeline{
		validators: []Validator{
			schemaValidator{},
			stateValidator{},
			rangeValidator{},
			permissionValidator{},
		},
	}
}

// Validate runs the record through every validator in order and returns the
// first failure, or a passing result.
func (p *Pipeline) Validate(rec Record, snap *types.RoomSnapshot) Result {
	for _, v := range p.validators {
		if res := v.Validate(rec, snap); !res.OK {
			return res
		}
	}
	return pass()
}
