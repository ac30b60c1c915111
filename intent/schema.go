package intent

import (
	"github.com/burrowgame/burrow/types"
)

// fieldSpec is one required field of an intent type.
type fieldSpec struct {
	name     string
	kind     Kind
	resource bool // value must also be in the closed resource vocabulary
}

var requiredFields = map[string][]fieldSpec{
	"transfer": {
		{name: "targetId", kind: KindText},
		{name: "resourceType", kind: KindText, resource: true},
	},
	"withdraw": {
		{name: "targetId", kind: KindText},
		{name: "resourceType", kind: KindText, resource: true},
	},
	"attack":            {{name: "targetId", kind: KindText}},
	"rangedAttack":      {{name: "targetId", kind: KindText}},
	"heal":              {{name: "targetId", kind: KindText}},
	"rangedHeal":        {{name: "targetId", kind: KindText}},
	"repair":            {{name: "targetId", kind: KindText}},
	"build":             {{name: "targetId", kind: KindText}},
	"harvest":           {{name: "targetId", kind: KindText}},
	"upgradeController": {{name: "targetId", kind: KindText}},
	"attackController":  {{name: "targetId", kind: KindText}},
	"reserveController": {{name: "targetId", kind: KindText}},
	"transferEnergy":    {{name: "targetId", kind: KindText}},
	"runReaction": {
		{name: "lab1Id", kind: KindText},
		{name: "lab2Id", kind: KindText},
	},
}

// amountFields are checked for non-negativity on every intent that carries
// them, known type or not.
var amountFields = []string{"amount", "energy"}

// schemaValidator rejects malformed payloads: missing required fields, wrong
// field types, resource names outside the closed vocabulary, negative
// amounts. It runs first so later validators can assume well-formed input.
type schemaValidator struct{}

func (schemaValidator) Name() string { return "schema" }

func (schemaValidator) Validate(rec Record, _ *types.RoomSnapshot) Result {
	for _, spec := range requiredFields[rec.Name] {
		v, ok := rec.Field(spec.name)
		if !ok || v.Kind() != spec.kind {
			return fail(ReasonInvalidArgs)
		}
		if spec.resource {
			name, _ := v.Text()
			if !types.IsKnownResource(name) {
				return fail(ReasonInvalidArgs)
			}
		}
	}

	for _, name := range amountFields {
		v, ok := rec.Field(name)
		if !ok {
			continue
		}
		n, isNumber := v.Number()
		if !isNumber || n < 0 {
			return fail(ReasonInvalidArgs)
		}
	}

	// resourceType on any intent must come from the vocabulary, even where
	// it is not required.
	if v, ok := rec.Field("resourceType"); ok {
		name, isText := v.Text()
		if !isText || !types.IsKnownResource(name) {
			return fail(ReasonInvalidArgs)
		}
	}

	return pass()
}
