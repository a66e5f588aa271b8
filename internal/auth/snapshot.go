package auth

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// State is the serializable form of the auth table, used by snapshots.
type State struct {
	Grants    []GrantState `json:"grants"`
	Whitelist []PairState  `json:"whitelist"`
}

type GrantState struct {
	Role    uint8  `json:"role"`
	Address string `json:"address"`
}

type PairState struct {
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
}

// Export captures all role grants and move whitelists, sorted.
func (t *Table) Export() *State {
	st := &State{}
	for role, addrs := range t.roles {
		for addr, ok := range addrs {
			if !ok {
				continue
			}
			st.Grants = append(st.Grants, GrantState{Role: uint8(role), Address: addr.Hex()})
		}
	}
	sort.Slice(st.Grants, func(i, j int) bool {
		a, b := st.Grants[i], st.Grants[j]
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		return a.Address < b.Address
	})

	for owner, operators := range t.whitelist {
		for op, ok := range operators {
			if !ok {
				continue
			}
			st.Whitelist = append(st.Whitelist, PairState{Owner: owner.Hex(), Operator: op.Hex()})
		}
	}
	sort.Slice(st.Whitelist, func(i, j int) bool {
		a, b := st.Whitelist[i], st.Whitelist[j]
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		return a.Operator < b.Operator
	})
	return st
}

// Restore replaces the table's contents with the snapshot's.
func (t *Table) Restore(st *State) {
	t.roles = make(map[Role]map[common.Address]bool)
	t.whitelist = make(map[common.Address]map[common.Address]bool)
	for _, g := range st.Grants {
		t.Grant(Role(g.Role), common.HexToAddress(g.Address))
	}
	for _, p := range st.Whitelist {
		t.AllowMove(common.HexToAddress(p.Owner), common.HexToAddress(p.Operator), true)
	}
}
