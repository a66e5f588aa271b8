package registry

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"VaultLedger/internal/auth"
	"VaultLedger/internal/journal"
	"VaultLedger/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnknownPosition = errors.New("unknown position id")
	ErrZeroOwner       = errors.New("zero owner address")
	ErrSameOwner       = errors.New("destination already owns position")
	ErrPoolMismatch    = errors.New("positions belong to different pools")
)

// Settler is the emergency-settlement collaborator used by
// RedeemLockedCollateral after the system is caged.
type Settler interface {
	RedeemLockedCollateral(b *journal.Batch, poolID string, positionAddr, dst common.Address) error
}

// Manager maps integer position ids onto ledger position addresses. Each id
// gets a synthetic address derived from the id, so positions transfer by
// reassigning the id instead of touching the ledger's balance maps.
//
// Ids per owner form a doubly linked list kept as an arena of prev/next
// fields, so ownership listings are walkable in insertion order and the
// whole structure serializes cleanly.
type Manager struct {
	table    *auth.Table
	ledger   *ledger.Ledger
	settler  Settler
	identity common.Address // acts as the ledger caller for all delegated ops

	nextID uint64

	owners    map[uint64]common.Address
	poolOf    map[uint64]string
	synthetic map[uint64]common.Address

	prev  map[uint64]uint64
	next  map[uint64]uint64
	first map[common.Address]uint64
	last  map[common.Address]uint64
	count map[common.Address]uint64

	allowManage  map[uint64]map[common.Address]bool
	allowMigrate map[common.Address]map[common.Address]bool
}

func NewManager(table *auth.Table, l *ledger.Ledger, identity common.Address) *Manager {
	return &Manager{
		table:        table,
		ledger:       l,
		identity:     identity,
		nextID:       1,
		owners:       make(map[uint64]common.Address),
		poolOf:       make(map[uint64]string),
		synthetic:    make(map[uint64]common.Address),
		prev:         make(map[uint64]uint64),
		next:         make(map[uint64]uint64),
		first:        make(map[common.Address]uint64),
		last:         make(map[common.Address]uint64),
		count:        make(map[common.Address]uint64),
		allowManage:  make(map[uint64]map[common.Address]bool),
		allowMigrate: make(map[common.Address]map[common.Address]bool),
	}
}

// SetSettler wires the emergency settlement collaborator.
func (m *Manager) SetSettler(s Settler) { m.settler = s }

// PositionAddress derives the synthetic ledger address for an id.
func PositionAddress(id uint64) common.Address {
	h := crypto.Keccak256([]byte("VaultLedger/position/" + strconv.FormatUint(id, 10)))
	return common.BytesToAddress(h[12:])
}

// --- read accessors ---

func (m *Manager) Owner(id uint64) (common.Address, error) {
	owner, ok := m.owners[id]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrUnknownPosition, id)
	}
	return owner, nil
}

func (m *Manager) Pool(id uint64) (string, error) {
	pool, ok := m.poolOf[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownPosition, id)
	}
	return pool, nil
}

func (m *Manager) Address(id uint64) (common.Address, error) {
	addr, ok := m.synthetic[id]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrUnknownPosition, id)
	}
	return addr, nil
}

func (m *Manager) Count(owner common.Address) uint64 { return m.count[owner] }

// List walks owner's linked list front to back.
func (m *Manager) List(owner common.Address) []uint64 {
	out := make([]uint64, 0, m.count[owner])
	for id := m.first[owner]; id != 0; id = m.next[id] {
		out = append(out, id)
	}
	return out
}

// canManage reports whether user owns id or has been granted management.
func (m *Manager) canManage(id uint64, user common.Address) bool {
	if m.owners[id] == user {
		return true
	}
	return m.allowManage[id][user]
}

// migrationAllowed requires the grant in both directions.
func (m *Manager) migrationAllowed(a, b common.Address) bool {
	if a == b {
		return true
	}
	return m.allowMigrate[a][b] && m.allowMigrate[b][a]
}

// --- list surgery ---

func (m *Manager) appendToList(owner common.Address, id uint64) {
	if m.count[owner] == 0 {
		m.first[owner] = id
	} else {
		tail := m.last[owner]
		m.next[tail] = id
		m.prev[id] = tail
	}
	m.last[owner] = id
	m.count[owner]++
}

func (m *Manager) unlink(owner common.Address, id uint64) {
	p, n := m.prev[id], m.next[id]
	if p != 0 {
		m.next[p] = n
	} else {
		m.first[owner] = n
	}
	if n != 0 {
		m.prev[n] = p
	} else {
		m.last[owner] = p
	}
	m.prev[id] = 0
	m.next[id] = 0
	m.count[owner]--
	if m.count[owner] == 0 {
		delete(m.first, owner)
		delete(m.last, owner)
		delete(m.count, owner)
	}
}

// Open allocates the next id for owner in pool. The manager whitelists its
// own identity on the new synthetic address so later delegated calls pass
// the ledger's consent checks.
func (m *Manager) Open(poolID string, owner common.Address) (uint64, error) {
	if owner == (common.Address{}) {
		return 0, ErrZeroOwner
	}
	if !m.ledger.HasPool(poolID) {
		return 0, fmt.Errorf("unknown pool %s", poolID)
	}

	id := m.nextID
	m.nextID++

	addr := PositionAddress(id)
	m.owners[id] = owner
	m.poolOf[id] = poolID
	m.synthetic[id] = addr
	m.appendToList(owner, id)

	m.table.AllowMove(addr, m.identity, true)
	return id, nil
}

// Give reassigns id to newOwner, relinking the ownership lists.
func (m *Manager) Give(caller common.Address, id uint64, newOwner common.Address) error {
	owner, err := m.Owner(id)
	if err != nil {
		return err
	}
	if !m.canManage(id, caller) {
		return fmt.Errorf("%w: caller may not manage position %d", auth.ErrNotAuthorized, id)
	}
	if newOwner == (common.Address{}) {
		return ErrZeroOwner
	}
	if newOwner == owner {
		return ErrSameOwner
	}

	m.unlink(owner, id)
	m.appendToList(newOwner, id)
	m.owners[id] = newOwner
	// Manage grants were issued under the previous owner and do not carry
	// over to the new one.
	delete(m.allowManage, id)
	return nil
}

// AllowManagePosition grants or revokes user's right to manage one id.
func (m *Manager) AllowManagePosition(caller common.Address, id uint64, user common.Address, ok bool) error {
	if _, err := m.Owner(id); err != nil {
		return err
	}
	if !m.canManage(id, caller) {
		return fmt.Errorf("%w: caller may not manage position %d", auth.ErrNotAuthorized, id)
	}
	grants, exists := m.allowManage[id]
	if !exists {
		grants = make(map[common.Address]bool)
		m.allowManage[id] = grants
	}
	if ok {
		grants[user] = true
	} else {
		delete(grants, user)
	}
	return nil
}

// AllowMigratePosition grants or revokes position import/export between the
// caller's address and user. Both sides must grant before a migration runs.
func (m *Manager) AllowMigratePosition(caller, user common.Address, ok bool) {
	grants, exists := m.allowMigrate[caller]
	if !exists {
		grants = make(map[common.Address]bool)
		m.allowMigrate[caller] = grants
	}
	if ok {
		grants[user] = true
	} else {
		delete(grants, user)
	}
}

// AdjustPosition delegates to the ledger with the id's synthetic address as
// position, collateral and stablecoin owner alike.
func (m *Manager) AdjustPosition(b *journal.Batch, caller common.Address, id uint64, deltaCollateral, deltaDebtShare *big.Int) error {
	addr, err := m.Address(id)
	if err != nil {
		return err
	}
	if !m.canManage(id, caller) {
		return fmt.Errorf("%w: caller may not manage position %d", auth.ErrNotAuthorized, id)
	}
	return m.ledger.AdjustPosition(b, m.identity, m.poolOf[id], addr, addr, addr, deltaCollateral, deltaDebtShare)
}

// MoveCollateral moves free collateral out of the id's synthetic address.
func (m *Manager) MoveCollateral(b *journal.Batch, caller common.Address, id uint64, dst common.Address, amount *big.Int) error {
	addr, err := m.Address(id)
	if err != nil {
		return err
	}
	if !m.canManage(id, caller) {
		return fmt.Errorf("%w: caller may not manage position %d", auth.ErrNotAuthorized, id)
	}
	return m.ledger.MoveCollateral(b, m.identity, m.poolOf[id], addr, dst, amount)
}

// MoveStablecoin moves stablecoin out of the id's synthetic address.
func (m *Manager) MoveStablecoin(b *journal.Batch, caller common.Address, id uint64, dst common.Address, amount *big.Int) error {
	addr, err := m.Address(id)
	if err != nil {
		return err
	}
	if !m.canManage(id, caller) {
		return fmt.Errorf("%w: caller may not manage position %d", auth.ErrNotAuthorized, id)
	}
	return m.ledger.MoveStablecoin(b, m.identity, addr, dst, amount)
}

// MovePosition transfers locked collateral and debt share between two ids
// in the same pool. Caller must be able to manage both.
func (m *Manager) MovePosition(b *journal.Batch, caller common.Address, srcID, dstID uint64, collateralAmount, debtShareAmount *big.Int) error {
	srcAddr, err := m.Address(srcID)
	if err != nil {
		return err
	}
	dstAddr, err := m.Address(dstID)
	if err != nil {
		return err
	}
	if !m.canManage(srcID, caller) || !m.canManage(dstID, caller) {
		return fmt.Errorf("%w: caller may not manage both positions", auth.ErrNotAuthorized)
	}
	if m.poolOf[srcID] != m.poolOf[dstID] {
		return ErrPoolMismatch
	}
	return m.ledger.MovePosition(b, m.identity, m.poolOf[srcID], srcAddr, dstAddr, collateralAmount, debtShareAmount)
}

// ExportPosition moves the id's full position onto a plain ledger address.
// Requires manage rights on the id plus a mutual migration grant between
// the id's owner and the destination.
func (m *Manager) ExportPosition(b *journal.Batch, caller common.Address, id uint64, dst common.Address) error {
	addr, err := m.Address(id)
	if err != nil {
		return err
	}
	if !m.canManage(id, caller) {
		return fmt.Errorf("%w: caller may not manage position %d", auth.ErrNotAuthorized, id)
	}
	if !m.migrationAllowed(m.owners[id], dst) {
		return fmt.Errorf("%w: migration between %s and %s not granted both ways",
			auth.ErrNotAuthorized, m.owners[id].Hex(), dst.Hex())
	}
	pos := m.ledger.GetPosition(m.poolOf[id], addr)
	return m.ledger.MovePosition(b, m.identity, m.poolOf[id], addr, dst, pos.LockedCollateral, pos.DebtShare)
}

// ImportPosition is the inverse of ExportPosition: it pulls a plain
// address's position into the id's synthetic address. The source address
// must have whitelisted the manager on the ledger's auth table.
func (m *Manager) ImportPosition(b *journal.Batch, caller common.Address, src common.Address, id uint64) error {
	addr, err := m.Address(id)
	if err != nil {
		return err
	}
	if !m.canManage(id, caller) {
		return fmt.Errorf("%w: caller may not manage position %d", auth.ErrNotAuthorized, id)
	}
	if !m.migrationAllowed(src, m.owners[id]) {
		return fmt.Errorf("%w: migration between %s and %s not granted both ways",
			auth.ErrNotAuthorized, src.Hex(), m.owners[id].Hex())
	}
	pos := m.ledger.GetPosition(m.poolOf[id], src)
	return m.ledger.MovePosition(b, m.identity, m.poolOf[id], src, addr, pos.LockedCollateral, pos.DebtShare)
}

// RedeemLockedCollateral claims the id's residual collateral after global
// settlement, routing it to dst.
func (m *Manager) RedeemLockedCollateral(b *journal.Batch, caller common.Address, id uint64, dst common.Address) error {
	addr, err := m.Address(id)
	if err != nil {
		return err
	}
	if !m.canManage(id, caller) {
		return fmt.Errorf("%w: caller may not manage position %d", auth.ErrNotAuthorized, id)
	}
	if m.settler == nil {
		return errors.New("settlement not wired")
	}
	return m.settler.RedeemLockedCollateral(b, m.poolOf[id], addr, dst)
}
