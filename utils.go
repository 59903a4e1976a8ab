package attestry

import (
	"github.com/cosmos/cosmos-sdk/types/bech32"
)

// IsAID reports whether s is a well-formed account identifier.
func IsAID(s string) bool {
	hrp, _, err := bech32.DecodeAndConvert(s)
	if err != nil {
		return false
	}
	return hrp == "aid"
}
