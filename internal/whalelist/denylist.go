package whalelist

import "github.com/ethereum/go-ethereum/common"

// denyListed holds well-known exchange, bridge, and burn addresses that
// must never be counted as a "whale" holder — their balances reflect
// custodial pooling, not a single economic actor's conviction. Named in
// the teacher's style of declaring protocol addresses as package-level
// constants (see blackhole.go's router/factory address consts).
var denyListed = map[common.Address]struct{}{
	common.HexToAddress("0x00000000219ab540356cBB839Cbe05303d7705Fa"): {}, // ETH2 deposit contract
	common.HexToAddress("0x28C6c06298d514Db089934071355E5743bf21d60"): {}, // Binance 14
	common.HexToAddress("0x21a31Ee1afC51d94C2eFcCAa2092aD1028285549"): {}, // Binance 15
	common.HexToAddress("0xDFd5293D8e347dFe59E90eFd55b2956a1343963d"): {}, // Binance 16
	common.HexToAddress("0x3f5CE5FBFe3E9af3971dD833D26bA9b5C936f0bE"): {}, // Binance Hot Wallet 6
	common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc454e4438f44e"): {}, // common burn/test address
	common.HexToAddress("0x000000000000000000000000000000000000dEaD"): {}, // burn address
}

// IsDenyListed reports whether addr is a known exchange/bridge/burn
// address that must be excluded from whale candidacy.
func IsDenyListed(addr common.Address) bool {
	_, ok := denyListed[addr]
	return ok
}
