package multicall

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Multicall3Address is the canonical, identically-addressed Multicall3
// deployment present on Ethereum mainnet and most EVM chains.
const Multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

const multicall3ABIJSON = `[
  {"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bool","name":"allowFailure","type":"bool"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call3[]","name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"},
  {"inputs":[{"internalType":"address","name":"addr","type":"address"}],"name":"getEthBalance","outputs":[{"internalType":"uint256","name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const erc20ABIJSON = `[
  {"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}
]`

// parsedMulticall3ABI and parsedERC20ABI are parsed once at package init;
// a malformed literal above is a build-time bug, not a runtime condition.
var (
	parsedMulticall3ABI = mustParseABI(multicall3ABIJSON)
	parsedERC20ABI      = mustParseABI(erc20ABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("multicall: invalid embedded ABI literal: " + err.Error())
	}
	return parsed
}
