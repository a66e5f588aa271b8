package auth

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotAuthorized is returned when a caller lacks the required role or
// per-address allowance. Wrapped by every component's permission checks.
var ErrNotAuthorized = errors.New("not authorized")

// Role is a protocol capability. Every role-gated ledger operation names the
// role it requires and checks it before touching any state.
type Role uint8

const (
	RoleOwner Role = iota
	RoleGov
	RoleAdapter
	RoleLiquidationEngine
	RoleStabilityFeeCollector
	RoleMintable
	RoleShowStopper
	RolePositionManager
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleGov:
		return "gov"
	case RoleAdapter:
		return "adapter"
	case RoleLiquidationEngine:
		return "liquidation_engine"
	case RoleStabilityFeeCollector:
		return "stability_fee_collector"
	case RoleMintable:
		return "mintable"
	case RoleShowStopper:
		return "show_stopper"
	case RolePositionManager:
		return "position_manager"
	default:
		return "unknown"
	}
}

// Table is the explicit capability table: role -> set of addresses, plus the
// address -> address whitelist relation that lets one address move another's
// balances. The table is shared by every protocol component and consulted as
// the very first step of each mutating operation.
//
// Not thread-safe — only accessed from the single-threaded deterministic core.
type Table struct {
	roles     map[Role]map[common.Address]bool
	whitelist map[common.Address]map[common.Address]bool
}

func NewTable() *Table {
	return &Table{
		roles:     make(map[Role]map[common.Address]bool),
		whitelist: make(map[common.Address]map[common.Address]bool),
	}
}

// Grant gives addr the role.
func (t *Table) Grant(role Role, addr common.Address) {
	set, ok := t.roles[role]
	if !ok {
		set = make(map[common.Address]bool)
		t.roles[role] = set
	}
	set[addr] = true
}

// Revoke removes the role from addr.
func (t *Table) Revoke(role Role, addr common.Address) {
	if set, ok := t.roles[role]; ok {
		delete(set, addr)
	}
}

// Has reports whether addr holds the role.
func (t *Table) Has(role Role, addr common.Address) bool {
	return t.roles[role][addr]
}

// HasAny reports whether addr holds at least one of the roles.
func (t *Table) HasAny(addr common.Address, roles ...Role) bool {
	for _, r := range roles {
		if t.Has(r, addr) {
			return true
		}
	}
	return false
}

// AllowMove grants or revokes operator's permission to move owner's
// balances and manage owner's positions. Never ownership, purely a
// capability consulted on cross-address mutations.
func (t *Table) AllowMove(owner, operator common.Address, ok bool) {
	set, exists := t.whitelist[owner]
	if !exists {
		if !ok {
			return
		}
		set = make(map[common.Address]bool)
		t.whitelist[owner] = set
	}
	if ok {
		set[operator] = true
	} else {
		delete(set, operator)
	}
}

// CanMove reports whether caller may move owner's balances: the owner
// always can, otherwise the whitelist decides.
func (t *Table) CanMove(owner, caller common.Address) bool {
	if owner == caller {
		return true
	}
	return t.whitelist[owner][caller]
}
