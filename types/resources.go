package types

// Closed resource vocabulary. The schema validator rejects any resource name
// outside this set.
const (
	ResourceEnergy = "energy"
	ResourcePower  = "power"

	ResourceHydrogen  = "H"
	ResourceOxygen    = "O"
	ResourceUtrium    = "U"
	ResourceLemergium = "L"
	ResourceKeanium   = "K"
	ResourceZynthium  = "Z"
	ResourceCatalyst  = "X"
	ResourceGhodium   = "G"

	ResourceHydroxide        = "OH"
	ResourceZynthiumKeanite  = "ZK"
	ResourceUtriumLemergite  = "UL"
	ResourceUtriumHydride    = "UH"
	ResourceKeaniumOxide     = "KO"
	ResourceLemergiumHydride = "LH"
	ResourceZynthiumHydride  = "ZH"
	ResourceGhodiumHydride   = "GH"
)

var knownResources = map[string]struct{}{
	ResourceEnergy:           {},
	ResourcePower:            {},
	ResourceHydrogen:         {},
	ResourceOxygen:           {},
	ResourceUtrium:           {},
	ResourceLemergium:        {},
	ResourceKeanium:          {},
	ResourceZynthium:         {},
	ResourceCatalyst:         {},
	ResourceGhodium:          {},
	ResourceHydroxide:        {},
	ResourceZynthiumKeanite:  {},
	ResourceUtriumLemergite:  {},
	ResourceUtriumHydride:    {},
	ResourceKeaniumOxide:     {},
	ResourceLemergiumHydride: {},
	ResourceZynthiumHydride:  {},
	ResourceGhodiumHydride:   {},
}

func IsKnownResource(name string) bool {
	_, ok := knownResources[name]
	return ok
}

type reagentPair struct{ a, b string }

var reactions = map[reagentPair]string{
	{ResourceHydrogen, ResourceOxygen}:    ResourceHydroxide,
	{ResourceZynthium, ResourceKeanium}:   ResourceZynthiumKeanite,
	{ResourceUtrium, ResourceLemergium}:   ResourceUtriumLemergite,
	{ResourceUtrium, ResourceHydrogen}:    ResourceUtriumHydride,
	{ResourceKeanium, ResourceOxygen}:     ResourceKeaniumOxide,
	{ResourceLemergium, ResourceHydrogen}: ResourceLemergiumHydride,
	{ResourceZynthium, ResourceHydrogen}:  ResourceZynthiumHydride,
	{ResourceGhodium, ResourceHydrogen}:   ResourceGhodiumHydride,
}

// ReactionProduct returns the lab conversion product for two reagents, in
// either argument order. The second return is false for an unknown pairing.
func ReactionProduct(a, b string) (string, bool) {
	if product, ok := reactions[reagentPair{a, b}]; ok {
		return product, true
	}
	product, ok := reactions[reagentPair{b, a}]
	return product, ok
}
