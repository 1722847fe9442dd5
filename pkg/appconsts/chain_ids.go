package appconsts

const (
	DawnChainID    = "dawn-1"
	DuskChainID    = "dusk-11"
	MainnetChainID = "astria"
)

var PublicNetworks = []string{DawnChainID, DuskChainID, MainnetChainID}

// IsPublicNetwork reports whether chainID is one of the known public networks.
// Error details are not exposed in ABCI responses on public networks.
func IsPublicNetwork(chainID string) bool {
	for _, id := range PublicNetworks {
		if id == chainID {
			return true
		}
	}
	return false
}
