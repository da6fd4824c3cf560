// Package memory holds an in-memory ledger.Store used by the engine tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"condoledger/internal/ledger"
)

// Store keeps all ledger state in maps guarded by one mutex. It is not a
// transaction: tests drive the engine directly against it.
type Store struct {
	mu sync.Mutex

	units       map[int64]*ledger.Unit
	settlements map[int64]*ledger.Settlement
	charges     map[int64]*ledger.Charge
	payments    map[int64]*ledger.Payment
	movements   []*ledger.CreditMovement

	nextUnitID       int64
	nextSettlementID int64
	nextChargeID     int64
	nextPaymentID    int64
	nextMovementID   int64
}

func New() *Store {
	return &Store{
		units:            make(map[int64]*ledger.Unit),
		settlements:      make(map[int64]*ledger.Settlement),
		charges:          make(map[int64]*ledger.Charge),
		payments:         make(map[int64]*ledger.Payment),
		nextUnitID:       1,
		nextSettlementID: 1,
		nextChargeID:     1,
		nextPaymentID:    1,
		nextMovementID:   1,
	}
}

// AddUnit seeds a unit and returns its id.
func (s *Store) AddUnit(u ledger.Unit) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.nextUnitID
	s.nextUnitID++
	s.units[u.ID] = &u
	return u.ID
}

// AddSettlement seeds a settlement and returns its id.
func (s *Store) AddSettlement(st ledger.Settlement) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.ID = s.nextSettlementID
	s.nextSettlementID++
	s.settlements[st.ID] = &st
	return st.ID
}

// AddCharge seeds a charge and returns its id.
func (s *Store) AddCharge(c ledger.Charge) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextChargeID
	s.nextChargeID++
	s.charges[c.ID] = &c
	return c.ID
}

// UnitMovements returns copies of the unit's movements in insertion order.
func (s *Store) UnitMovements(unitID int64) []ledger.CreditMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.CreditMovement
	for _, m := range s.movements {
		if m.UnitID == unitID {
			out = append(out, *m)
		}
	}
	return out
}

// Payments returns copies of all payments in id order.
func (s *Store) Payments() []ledger.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) UnitForUpdate(_ context.Context, unitID int64) (*ledger.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[unitID]
	if !ok {
		return nil, ledger.ErrUnitNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) SetUnitCreditBalance(_ context.Context, unitID int64, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[unitID]
	if !ok {
		return ledger.ErrUnitNotFound
	}
	u.CreditBalance = balance
	return nil
}

func (s *Store) Settlement(_ context.Context, settlementID int64) (*ledger.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settlements[settlementID]
	if !ok {
		return nil, ledger.ErrSettlementNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *Store) ChargeForUpdate(_ context.Context, settlementID, unitID int64) (*ledger.Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.charges {
		if c.SettlementID == settlementID && c.UnitID == unitID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ledger.ErrChargeNotFound
}

func (s *Store) unitChargesLocked(unitID int64) []ledger.ChargeWithSettlement {
	var out []ledger.ChargeWithSettlement
	for _, c := range s.charges {
		if c.UnitID != unitID {
			continue
		}
		st, ok := s.settlements[c.SettlementID]
		if !ok {
			continue
		}
		out = append(out, ledger.ChargeWithSettlement{Charge: *c, Settlement: *st})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Settlement.Year != b.Settlement.Year {
			return a.Settlement.Year < b.Settlement.Year
		}
		if a.Settlement.Month != b.Settlement.Month {
			return a.Settlement.Month < b.Settlement.Month
		}
		return a.ID < b.ID
	})
	return out
}

func (s *Store) OverdueCharges(_ context.Context, unitID int64, reference time.Time) ([]ledger.ChargeWithSettlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.ChargeWithSettlement
	for _, cws := range s.unitChargesLocked(unitID) {
		if cws.Settlement.DueDate2 == nil || reference.Before(*cws.Settlement.DueDate2) {
			continue
		}
		out = append(out, cws)
	}
	return out, nil
}

func (s *Store) OpenCharges(_ context.Context, unitID int64) ([]ledger.ChargeWithSettlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.ChargeWithSettlement
	for _, cws := range s.unitChargesLocked(unitID) {
		if !cws.TotalToPay.IsPositive() || cws.Status == ledger.ChargeStatusPaid {
			continue
		}
		out = append(out, cws)
	}
	return out, nil
}

func (s *Store) FreezeChargeLateFee(_ context.Context, chargeID int64, frozenAt time.Time, monthsLate int, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.charges[chargeID]
	if !ok {
		return ledger.ErrChargeNotFound
	}
	if c.LateFeeFrozenAt != nil {
		return nil
	}
	at := frozenAt
	c.LateFeeFrozenAt = &at
	c.LateFeeMonths = monthsLate
	c.LateFeeAmount = amount
	return nil
}

func (s *Store) UpdateChargeTotals(_ context.Context, chargeID int64, principalPaid, lateFeePaid, totalToPay decimal.Decimal, status ledger.ChargeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.charges[chargeID]
	if !ok {
		return ledger.ErrChargeNotFound
	}
	c.PrincipalPaid = principalPaid
	c.LateFeePaid = lateFeePaid
	c.TotalToPay = totalToPay
	c.Status = status
	return nil
}

func (s *Store) InsertPayment(_ context.Context, p *ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextPaymentID
	s.nextPaymentID++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *Store) PaymentForUpdate(_ context.Context, paymentID int64) (*ledger.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return nil, ledger.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) MarkPaymentCancelled(_ context.Context, paymentID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return ledger.ErrPaymentNotFound
	}
	p.Status = ledger.PaymentStatusCancelled
	when := at
	p.CanceledAt = &when
	return nil
}

func (s *Store) DiscountUsed(_ context.Context, settlementID, unitID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, p := range s.payments {
		if p.SettlementID == settlementID && p.UnitID == unitID && p.Status == ledger.PaymentStatusCompleted {
			total = total.Add(p.DiscountApplied)
		}
	}
	return total, nil
}

func (s *Store) InsertCreditMovement(_ context.Context, m *ledger.CreditMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextMovementID
	s.nextMovementID++
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	cp := *m
	s.movements = append(s.movements, &cp)
	return nil
}

func (s *Store) PaymentCreditMovements(_ context.Context, paymentID int64) ([]ledger.CreditMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.CreditMovement
	for _, m := range s.movements {
		if m.PaymentID != nil && *m.PaymentID == paymentID {
			out = append(out, *m)
		}
	}
	return out, nil
}
