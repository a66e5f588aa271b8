package journal

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Account paths name the balance cells a journal entry touches. Paths are
// stable strings so projections and audits can reconstruct every balance by
// replaying the journal.
//
//	collateral:<pool>:<addr>   free collateral (unit scale)
//	locked:<pool>:<addr>       collateral pledged to a position (unit scale)
//	stablecoin:<addr>          issued stable balance (accum scale)
//	unbacked:<addr>            recorded system bad debt (accum scale)
//	debt:<pool>:<addr>         a position's normalized debt share (unit scale)
//	external:<name>            boundary accounts (adapter custody, settlement)

func CollateralAccount(poolID string, addr common.Address) string {
	return fmt.Sprintf("collateral:%s:%s", poolID, strings.ToLower(addr.Hex()))
}

func LockedAccount(poolID string, addr common.Address) string {
	return fmt.Sprintf("locked:%s:%s", poolID, strings.ToLower(addr.Hex()))
}

func StablecoinAccount(addr common.Address) string {
	return fmt.Sprintf("stablecoin:%s", strings.ToLower(addr.Hex()))
}

func UnbackedAccount(addr common.Address) string {
	return fmt.Sprintf("unbacked:%s", strings.ToLower(addr.Hex()))
}

func DebtShareAccount(poolID string, addr common.Address) string {
	return fmt.Sprintf("debt:%s:%s", poolID, strings.ToLower(addr.Hex()))
}

func ExternalAccount(name string) string {
	return "external:" + name
}

// Balance dimensions. Entries within one dimension are zero-sum; entries
// never cross dimensions.

func DimCollateral(poolID string) string { return "collateral:" + poolID }

func DimDebtShare(poolID string) string { return "debt:" + poolID }

const (
	DimStablecoin = "stablecoin"
	DimUnbacked   = "unbacked"
)
