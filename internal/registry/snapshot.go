package registry

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// State is the serializable form of the manager, used by snapshots. The
// linked lists are rebuilt from per-owner insertion order on restore.
type State struct {
	NextID     uint64           `json:"next_id"`
	Positions  []PositionRecord `json:"positions"`
	Manage     []ManageGrant    `json:"manage"`
	Migrations []MigrationGrant `json:"migrations"`
}

// PositionRecord carries one id with its place in the owner's list.
type PositionRecord struct {
	ID     uint64 `json:"id"`
	Owner  string `json:"owner"`
	PoolID string `json:"pool_id"`
	Index  int    `json:"index"` // position within the owner's list
}

type ManageGrant struct {
	ID   uint64 `json:"id"`
	User string `json:"user"`
}

type MigrationGrant struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Export captures ids, list order, and grants.
func (m *Manager) Export() *State {
	st := &State{NextID: m.nextID}

	ownerSet := make(map[common.Address]bool)
	for _, owner := range m.owners {
		ownerSet[owner] = true
	}
	ownerList := make([]common.Address, 0, len(ownerSet))
	for owner := range ownerSet {
		ownerList = append(ownerList, owner)
	}
	sort.Slice(ownerList, func(i, j int) bool { return ownerList[i].Hex() < ownerList[j].Hex() })

	for _, owner := range ownerList {
		for i, id := range m.List(owner) {
			st.Positions = append(st.Positions, PositionRecord{
				ID:     id,
				Owner:  owner.Hex(),
				PoolID: m.poolOf[id],
				Index:  i,
			})
		}
	}

	for id, users := range m.allowManage {
		for user, ok := range users {
			if !ok {
				continue
			}
			st.Manage = append(st.Manage, ManageGrant{ID: id, User: user.Hex()})
		}
	}
	sort.Slice(st.Manage, func(i, j int) bool {
		if st.Manage[i].ID != st.Manage[j].ID {
			return st.Manage[i].ID < st.Manage[j].ID
		}
		return st.Manage[i].User < st.Manage[j].User
	})

	for from, tos := range m.allowMigrate {
		for to, ok := range tos {
			if !ok {
				continue
			}
			st.Migrations = append(st.Migrations, MigrationGrant{From: from.Hex(), To: to.Hex()})
		}
	}
	sort.Slice(st.Migrations, func(i, j int) bool {
		if st.Migrations[i].From != st.Migrations[j].From {
			return st.Migrations[i].From < st.Migrations[j].From
		}
		return st.Migrations[i].To < st.Migrations[j].To
	})
	return st
}

// Restore rebuilds the manager from a snapshot, re-deriving synthetic
// addresses and re-whitelisting the manager identity for each of them.
func (m *Manager) Restore(st *State) {
	m.nextID = st.NextID
	m.owners = make(map[uint64]common.Address)
	m.poolOf = make(map[uint64]string)
	m.synthetic = make(map[uint64]common.Address)
	m.prev = make(map[uint64]uint64)
	m.next = make(map[uint64]uint64)
	m.first = make(map[common.Address]uint64)
	m.last = make(map[common.Address]uint64)
	m.count = make(map[common.Address]uint64)
	m.allowManage = make(map[uint64]map[common.Address]bool)
	m.allowMigrate = make(map[common.Address]map[common.Address]bool)

	records := append([]PositionRecord(nil), st.Positions...)
	sort.Slice(records, func(i, j int) bool {
		if records[i].Owner != records[j].Owner {
			return records[i].Owner < records[j].Owner
		}
		return records[i].Index < records[j].Index
	})
	for _, rec := range records {
		owner := common.HexToAddress(rec.Owner)
		addr := PositionAddress(rec.ID)
		m.owners[rec.ID] = owner
		m.poolOf[rec.ID] = rec.PoolID
		m.synthetic[rec.ID] = addr
		m.appendToList(owner, rec.ID)
		m.table.AllowMove(addr, m.identity, true)
	}

	for _, g := range st.Manage {
		if m.allowManage[g.ID] == nil {
			m.allowManage[g.ID] = make(map[common.Address]bool)
		}
		m.allowManage[g.ID][common.HexToAddress(g.User)] = true
	}
	for _, g := range st.Migrations {
		from := common.HexToAddress(g.From)
		if m.allowMigrate[from] == nil {
			m.allowMigrate[from] = make(map[common.Address]bool)
		}
		m.allowMigrate[from][common.HexToAddress(g.To)] = true
	}
}
