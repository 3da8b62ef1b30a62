package lease_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/beesaferoot/leasekeeper/internal/audit"
	"github.com/beesaferoot/leasekeeper/internal/clock"
	"github.com/beesaferoot/leasekeeper/internal/contractnumber"
	"github.com/beesaferoot/leasekeeper/internal/lease"
	"github.com/beesaferoot/leasekeeper/internal/testutil"
	"github.com/beesaferoot/leasekeeper/models"
)

var now = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func newEngine(t *testing.T, opts ...lease.Option) (*lease.Engine, *gorm.DB, *clock.Fixed) {
	t.Helper()
	db := testutil.DB(t)
	clk := clock.NewFixed(now)
	opts = append([]lease.Option{lease.WithClock(clk)}, opts...)
	return lease.NewEngine(db, testutil.Logger(t), opts...), db, clk
}

func newContract(p *testutil.Property) *models.Contract {
	return &models.Contract{
		ApartmentID:   p.Apartment.ID,
		ResidentID:    p.Resident.ID,
		ContractType:  "RESIDENTIAL",
		StartDate:     testutil.Date(2024, 1, 1),
		EndDate:       testutil.DatePtr(2025, 1, 1),
		DepositAmount: 1500,
	}
}

func requireSameDay(t *testing.T, want time.Time, got *time.Time) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.Format(time.DateOnly), got.UTC().Format(time.DateOnly))
}

func activeCount(t *testing.T, db *gorm.DB, apartmentID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Contract{}).
		Where("apartment_id = ? AND is_deleted = ? AND status IN ?", apartmentID, false, models.ActiveStatuses).
		Count(&count).Error)
	return count
}

func loadContract(t *testing.T, db *gorm.DB, id uint) models.Contract {
	t.Helper()
	var c models.Contract
	require.NoError(t, db.First(&c, id).Error)
	return c
}

func TestCreateContract(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "A101")

	created, err := engine.CreateContract(context.Background(), lease.Actor("manager-7"), newContract(p))
	require.NoError(t, err)

	assert.NotZero(t, created.ID)
	assert.Equal(t, "HD20250115001", created.ContractNumber)
	assert.Equal(t, models.ContractActive, created.Status)
	assert.Nil(t, created.TerminatedDate)
	assert.Equal(t, models.ApartmentRented, testutil.ApartmentStatus(t, db, p.Apartment.ID))

	history, err := engine.History(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ActionCreated, history[0].Action)
	require.NotNil(t, history[0].CreatedBy)
	assert.Equal(t, "manager-7", *history[0].CreatedBy)
	assert.JSONEq(t, "null", string(history[0].OldValue))
	assert.Contains(t, string(history[0].NewValue), `"contract_number":"HD20250115001"`)
}

func TestCreateContractAnonymousActor(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "A102")

	created, err := engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)

	history, err := engine.History(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].CreatedBy)
}

func TestCreateContractNormalisesDates(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "A103")

	in := newContract(p)
	in.StartDate = time.Date(2024, 3, 5, 17, 45, 0, 0, time.UTC)
	in.Status = models.ContractTerminated

	created, err := engine.CreateContract(context.Background(), lease.Anonymous, in)
	require.NoError(t, err)

	stored := loadContract(t, db, created.ID)
	assert.Equal(t, "2024-03-05", stored.StartDate.UTC().Format(time.DateOnly))
	assert.Equal(t, 0, stored.StartDate.UTC().Hour())
	assert.Equal(t, models.ContractActive, stored.Status)
}

func TestCreateContractValidation(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "B201")

	tests := []struct {
		name  string
		input func() *models.Contract
	}{
		{
			name:  "nil contract",
			input: func() *models.Contract { return nil },
		},
		{
			name: "missing apartment",
			input: func() *models.Contract {
				c := newContract(p)
				c.ApartmentID = 0
				return c
			},
		},
		{
			name: "missing start date",
			input: func() *models.Contract {
				c := newContract(p)
				c.StartDate = time.Time{}
				return c
			},
		},
		{
			name: "end before start",
			input: func() *models.Contract {
				c := newContract(p)
				c.EndDate = testutil.DatePtr(2023, 12, 31)
				return c
			},
		},
		{
			name: "negative deposit",
			input: func() *models.Contract {
				c := newContract(p)
				c.DepositAmount = -1
				return c
			},
		},
		{
			name: "unknown apartment",
			input: func() *models.Contract {
				c := newContract(p)
				c.ApartmentID = 9999
				return c
			},
		},
		{
			name: "unknown resident",
			input: func() *models.Contract {
				c := newContract(p)
				c.ResidentID = 9999
				return c
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.CreateContract(context.Background(), lease.Anonymous, tt.input())
			require.Error(t, err)
			assert.ErrorIs(t, err, lease.ErrValidation)
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.Contract{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, models.ApartmentAvailable, testutil.ApartmentStatus(t, db, p.Apartment.ID))
}

func TestCreateRejectsSecondActiveContract(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "B202")

	_, err := engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)

	_, err = engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.Error(t, err)
	assert.ErrorIs(t, err, lease.ErrValidation)
	assert.Equal(t, int64(1), activeCount(t, db, p.Apartment.ID))

	var historyRows int64
	require.NoError(t, db.Model(&models.ContractHistory{}).Count(&historyRows).Error)
	assert.Equal(t, int64(1), historyRows)
}

func TestCreateContractIgnoresCallerID(t *testing.T) {
	db := testutil.DB(t)
	reg := prometheus.NewRegistry()
	engine := lease.NewEngine(db, testutil.Logger(t),
		lease.WithClock(clock.NewFixed(now)),
		lease.WithMetrics(lease.NewMetrics(reg)),
	)
	p := testutil.SeedProperty(t, db, "B203")
	second := testutil.SeedApartment(t, db, p, "B204")
	third := testutil.SeedApartment(t, db, p, "B205")

	first, err := engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)

	in := newContract(p)
	in.ApartmentID = second.ID
	in.ID = first.ID
	reused, err := engine.CreateContract(context.Background(), lease.Anonymous, in)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, reused.ID)
	assert.Equal(t, second.ID, loadContract(t, db, reused.ID).ApartmentID)
	assert.Equal(t, p.Apartment.ID, loadContract(t, db, first.ID).ApartmentID)

	in = newContract(p)
	in.ApartmentID = third.ID
	in.ID = 4242
	fresh, err := engine.CreateContract(context.Background(), lease.Anonymous, in)
	require.NoError(t, err)
	assert.NotEqual(t, uint(4242), fresh.ID)

	var stray int64
	require.NoError(t, db.Model(&models.Contract{}).Where("id = ?", 4242).Count(&stray).Error)
	assert.Zero(t, stray)
	assert.Zero(t, counterValue(t, reg, "leasekeeper_contract_number_retries_total"))
}

func TestConcurrentCreateSameApartment(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "C301")

	const callers = 6
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, lease.ErrValidation) || errors.Is(err, lease.ErrConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), activeCount(t, db, p.Apartment.ID))
}

func TestConcurrentCreateIssuesDistinctNumbers(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "C302")

	const callers = 5
	inputs := make([]*models.Contract, callers)
	for i := range inputs {
		apt := testutil.SeedApartment(t, db, p, "C30"+string(rune('3'+i)))
		c := newContract(p)
		c.ApartmentID = apt.ID
		inputs[i] = c
	}

	numbers := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := engine.CreateContract(context.Background(), lease.Anonymous, inputs[i])
			errs[i] = err
			if err == nil {
				numbers[i] = created.ContractNumber
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[numbers[i]], "duplicate number %s", numbers[i])
		seen[numbers[i]] = true
	}
}

func TestGenerateContractNumber(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "C310")

	first, err := engine.GenerateContractNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "HD20250115001", first)

	created, err := engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)
	assert.Equal(t, first, created.ContractNumber)

	next, err := engine.GenerateContractNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "HD20250115002", next)
}

// scriptedNumbers hands out the scripted numbers first, then defers to next.
// When repeat is set every call returns it.
type scriptedNumbers struct {
	mu     sync.Mutex
	script []string
	repeat string
	next   contractnumber.Generator
	calls  int
}

func (s *scriptedNumbers) Next(ctx context.Context, tx *gorm.DB) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.repeat != "" {
		return s.repeat, nil
	}
	if len(s.script) > 0 {
		n := s.script[0]
		s.script = s.script[1:]
		return n, nil
	}
	return s.next.Next(ctx, tx)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	db := testutil.DB(t)
	clk := clock.NewFixed(now)
	log := testutil.Logger(t)
	p := testutil.SeedProperty(t, db, "D401")
	other := testutil.SeedApartment(t, db, p, "D402")

	first, err := lease.NewEngine(db, log, lease.WithClock(clk)).
		CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)

	numbers := &scriptedNumbers{
		script: []string{first.ContractNumber},
		next:   contractnumber.NewGenerator(db, clk, log),
	}
	reg := prometheus.NewRegistry()
	engine := lease.NewEngine(db, log,
		lease.WithClock(clk),
		lease.WithNumberGenerator(numbers),
		lease.WithMetrics(lease.NewMetrics(reg)),
	)

	in := newContract(p)
	in.ApartmentID = other.ID
	created, err := engine.CreateContract(context.Background(), lease.Anonymous, in)
	require.NoError(t, err)

	assert.Equal(t, "HD20250115002", created.ContractNumber)
	assert.Equal(t, 2, numbers.calls)
	assert.Equal(t, float64(1), counterValue(t, reg, "leasekeeper_contract_number_retries_total"))
	assert.Equal(t, models.ApartmentRented, testutil.ApartmentStatus(t, db, other.ID))

	var historyRows int64
	require.NoError(t, db.Model(&models.ContractHistory{}).Where("contract_id = ?", created.ID).Count(&historyRows).Error)
	assert.Equal(t, int64(1), historyRows)
}

func TestCreateGivesUpAfterNumberAttempts(t *testing.T) {
	db := testutil.DB(t)
	clk := clock.NewFixed(now)
	log := testutil.Logger(t)
	p := testutil.SeedProperty(t, db, "D410")
	other := testutil.SeedApartment(t, db, p, "D411")

	first, err := lease.NewEngine(db, log, lease.WithClock(clk)).
		CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)

	numbers := &scriptedNumbers{repeat: first.ContractNumber}
	engine := lease.NewEngine(db, log,
		lease.WithClock(clk),
		lease.WithNumberGenerator(numbers),
		lease.WithNumberAttempts(3),
	)

	in := newContract(p)
	in.ApartmentID = other.ID
	_, err = engine.CreateContract(context.Background(), lease.Anonymous, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, lease.ErrConflict)
	assert.Equal(t, 3, numbers.calls)
	assert.Equal(t, models.ApartmentAvailable, testutil.ApartmentStatus(t, db, other.ID))
}

func TestRenewContract(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "E501")

	created, err := engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)

	require.NoError(t, engine.RenewContract(context.Background(), lease.Actor("clerk"), created.ID, testutil.Date(2025, 6, 1)))

	stored := loadContract(t, db, created.ID)
	requireSameDay(t, testutil.Date(2025, 6, 1), stored.EndDate)
	assert.Equal(t, models.ContractActive, stored.Status)

	history, err := engine.History(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.ActionRenewed, history[0].Action)
	requireSameDay(t, testutil.Date(2025, 1, 1), history[0].OldEndDate)
	requireSameDay(t, testutil.Date(2025, 6, 1), history[0].NewEndDate)
	assert.Nil(t, history[1].OldEndDate)
	assert.Nil(t, history[1].NewEndDate)
}

func TestRenewContractValidation(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "E502")

	created, err := engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)

	err = engine.RenewContract(context.Background(), lease.Anonymous, created.ID, testutil.Date(2023, 6, 1))
	assert.ErrorIs(t, err, lease.ErrValidation)

	err = engine.RenewContract(context.Background(), lease.Anonymous, created.ID, time.Time{})
	assert.ErrorIs(t, err, lease.ErrValidation)

	err = engine.RenewContract(context.Background(), lease.Anonymous, 4242, testutil.Date(2026, 1, 1))
	assert.ErrorIs(t, err, lease.ErrNotFound)

	requireSameDay(t, testutil.Date(2025, 1, 1), loadContract(t, db, created.ID).EndDate)
}

func TestTerminateContract(t *testing.T) {
	engine, db, clk := newEngine(t)
	p := testutil.SeedProperty(t, db, "F601")

	in := newContract(p)
	in.Notes = "pets allowed"
	created, err := engine.CreateContract(context.Background(), lease.Anonymous, in)
	require.NoError(t, err)

	require.NoError(t, engine.TerminateContract(context.Background(), lease.Actor("clerk"), created.ID, "moved out"))

	stored := loadContract(t, db, created.ID)
	assert.Equal(t, models.ContractTerminated, stored.Status)
	requireSameDay(t, testutil.Date(2025, 1, 15), stored.TerminatedDate)
	assert.Equal(t, "pets allowed\n[Terminated 2025-01-15] moved out", stored.Notes)
	assert.Equal(t, models.ApartmentAvailable, testutil.ApartmentStatus(t, db, p.Apartment.ID))

	// A repeated termination keeps the original date and still logs.
	clk.Advance(24 * time.Hour)
	require.NoError(t, engine.TerminateContract(context.Background(), lease.Actor("clerk"), created.ID, "again"))

	stored = loadContract(t, db, created.ID)
	requireSameDay(t, testutil.Date(2025, 1, 15), stored.TerminatedDate)
	assert.Equal(t, "pets allowed\n[Terminated 2025-01-15] moved out", stored.Notes)
	assert.Equal(t, models.ApartmentAvailable, testutil.ApartmentStatus(t, db, p.Apartment.ID))

	history, err := engine.History(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.ActionTerminated, history[0].Action)
	assert.Equal(t, "again", history[0].Reason)
	assert.Equal(t, models.ActionTerminated, history[1].Action)
	assert.Equal(t, models.ActionCreated, history[2].Action)
}

func TestRepeatTerminationKeepsNewTenantsApartment(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "F602")

	old, err := engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)
	require.NoError(t, engine.TerminateContract(context.Background(), lease.Anonymous, old.ID, ""))

	_, err = engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)
	require.Equal(t, models.ApartmentRented, testutil.ApartmentStatus(t, db, p.Apartment.ID))

	require.NoError(t, engine.TerminateContract(context.Background(), lease.Anonymous, old.ID, ""))
	assert.Equal(t, models.ApartmentRented, testutil.ApartmentStatus(t, db, p.Apartment.ID))
	assert.Equal(t, "[Terminated 2025-01-15]", loadContract(t, db, old.ID).Notes)

	require.NoError(t, engine.DeleteContract(context.Background(), lease.Anonymous, old.ID))
	assert.Equal(t, models.ApartmentRented, testutil.ApartmentStatus(t, db, p.Apartment.ID))
}

func TestDeleteContractKeepsHistory(t *testing.T) {
	engine, db, clk := newEngine(t)
	p := testutil.SeedProperty(t, db, "G701")

	created, err := engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)
	require.NoError(t, engine.RenewContract(context.Background(), lease.Anonymous, created.ID, testutil.Date(2025, 12, 31)))

	require.NoError(t, engine.DeleteContract(context.Background(), lease.Actor("admin"), created.ID))

	stored := loadContract(t, db, created.ID)
	assert.True(t, stored.IsDeleted)
	require.NotNil(t, stored.DeletedAt)
	assert.True(t, clk.Now().Equal(stored.DeletedAt.UTC()))
	assert.Equal(t, models.ContractActive, stored.Status)
	assert.Equal(t, models.ApartmentAvailable, testutil.ApartmentStatus(t, db, p.Apartment.ID))

	history, err := engine.History(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.ActionDeleted, history[0].Action)
	assert.Equal(t, models.ActionRenewed, history[1].Action)
	assert.Equal(t, models.ActionCreated, history[2].Action)

	_, err = engine.GetContract(context.Background(), created.ID)
	assert.ErrorIs(t, err, lease.ErrNotFound)

	err = engine.DeleteContract(context.Background(), lease.Anonymous, created.ID)
	assert.ErrorIs(t, err, lease.ErrNotFound)
	err = engine.TerminateContract(context.Background(), lease.Anonymous, created.ID, "")
	assert.ErrorIs(t, err, lease.ErrNotFound)

	// The apartment can be leased again.
	_, err = engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)
}

func TestUpdateContract(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "H801")

	created, err := engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)

	in := newContract(p)
	in.ID = created.ID
	in.DepositAmount = 2000
	in.Notes = "deposit raised"
	in.SignedDate = testutil.DatePtr(2023, 12, 20)
	require.NoError(t, engine.UpdateContract(context.Background(), lease.Actor("clerk"), in))

	stored := loadContract(t, db, created.ID)
	assert.Equal(t, float64(2000), stored.DepositAmount)
	assert.Equal(t, "deposit raised", stored.Notes)
	requireSameDay(t, testutil.Date(2023, 12, 20), stored.SignedDate)
	assert.Equal(t, created.ContractNumber, stored.ContractNumber)
	assert.Equal(t, models.ContractActive, stored.Status)

	history, err := engine.History(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.ActionUpdated, history[0].Action)
	assert.Contains(t, string(history[0].OldValue), `"deposit_amount":1500`)
	assert.Contains(t, string(history[0].NewValue), `"deposit_amount":2000`)
}

func TestUpdateContractRejections(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "H802")
	taken := testutil.SeedApartment(t, db, p, "H803")

	created, err := engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)

	occupant := newContract(p)
	occupant.ApartmentID = taken.ID
	_, err = engine.CreateContract(context.Background(), lease.Anonymous, occupant)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *models.Contract)
		kind   error
	}{
		{name: "change number", mutate: func(c *models.Contract) { c.ContractNumber = "HD19990101001" }, kind: lease.ErrValidation},
		{name: "change status", mutate: func(c *models.Contract) { c.Status = models.ContractTerminated }, kind: lease.ErrValidation},
		{name: "move to occupied apartment", mutate: func(c *models.Contract) { c.ApartmentID = taken.ID }, kind: lease.ErrValidation},
		{name: "move to unknown apartment", mutate: func(c *models.Contract) { c.ApartmentID = 9999 }, kind: lease.ErrValidation},
		{name: "unknown contract", mutate: func(c *models.Contract) { c.ID = 9999 }, kind: lease.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newContract(p)
			in.ID = created.ID
			tt.mutate(in)
			err := engine.UpdateContract(context.Background(), lease.Anonymous, in)
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	assert.Equal(t, p.Apartment.ID, loadContract(t, db, created.ID).ApartmentID)
}

func TestUpdateContractMovesApartment(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "H810")
	target := testutil.SeedApartment(t, db, p, "H811")

	created, err := engine.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)

	in := newContract(p)
	in.ID = created.ID
	in.ApartmentID = target.ID
	require.NoError(t, engine.UpdateContract(context.Background(), lease.Anonymous, in))

	assert.Equal(t, models.ApartmentAvailable, testutil.ApartmentStatus(t, db, p.Apartment.ID))
	assert.Equal(t, models.ApartmentRented, testutil.ApartmentStatus(t, db, target.ID))
	assert.Equal(t, int64(0), activeCount(t, db, p.Apartment.ID))
	assert.Equal(t, int64(1), activeCount(t, db, target.ID))
}

func TestExclusivityAcrossOperationSequence(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "J901")
	ctx := context.Background()

	check := func(wantActive int64, wantStatus models.ApartmentStatus) {
		t.Helper()
		assert.Equal(t, wantActive, activeCount(t, db, p.Apartment.ID))
		assert.Equal(t, wantStatus, testutil.ApartmentStatus(t, db, p.Apartment.ID))
	}

	a, err := engine.CreateContract(ctx, lease.Anonymous, newContract(p))
	require.NoError(t, err)
	check(1, models.ApartmentRented)

	_, err = engine.CreateContract(ctx, lease.Anonymous, newContract(p))
	require.ErrorIs(t, err, lease.ErrValidation)
	check(1, models.ApartmentRented)

	require.NoError(t, engine.TerminateContract(ctx, lease.Anonymous, a.ID, "end"))
	check(0, models.ApartmentAvailable)

	b, err := engine.CreateContract(ctx, lease.Anonymous, newContract(p))
	require.NoError(t, err)
	check(1, models.ApartmentRented)

	require.NoError(t, engine.DeleteContract(ctx, lease.Anonymous, a.ID))
	check(1, models.ApartmentRented)

	require.NoError(t, engine.DeleteContract(ctx, lease.Anonymous, b.ID))
	check(0, models.ApartmentAvailable)

	_, err = engine.CreateContract(ctx, lease.Anonymous, newContract(p))
	require.NoError(t, err)
	check(1, models.ApartmentRented)
}

// failingAudit rejects entries of one action and records the rest.
type failingAudit struct {
	audit.Store
	failOn models.HistoryAction
}

func (f *failingAudit) Append(ctx context.Context, tx *gorm.DB, entry audit.Entry) (uint, error) {
	if entry.Action == f.failOn {
		return 0, errors.New("history table unavailable")
	}
	return f.Store.Append(ctx, tx, entry)
}

func TestAuditFailureRollsBack(t *testing.T) {
	db := testutil.DB(t)
	clk := clock.NewFixed(now)
	log := testutil.Logger(t)
	p := testutil.SeedProperty(t, db, "K100")

	base := lease.NewEngine(db, log, lease.WithClock(clk))
	created, err := base.CreateContract(context.Background(), lease.Anonymous, newContract(p))
	require.NoError(t, err)

	failing := func(action models.HistoryAction) *lease.Engine {
		return lease.NewEngine(db, log,
			lease.WithClock(clk),
			lease.WithAuditStore(&failingAudit{Store: audit.NewStore(db, log), failOn: action}),
		)
	}

	t.Run("renew", func(t *testing.T) {
		err := failing(models.ActionRenewed).RenewContract(context.Background(), lease.Anonymous, created.ID, testutil.Date(2026, 1, 1))
		assert.ErrorIs(t, err, lease.ErrAuditWrite)
		requireSameDay(t, testutil.Date(2025, 1, 1), loadContract(t, db, created.ID).EndDate)
	})

	t.Run("update", func(t *testing.T) {
		in := newContract(p)
		in.ID = created.ID
		in.Notes = "not saved"
		err := failing(models.ActionUpdated).UpdateContract(context.Background(), lease.Anonymous, in)
		assert.ErrorIs(t, err, lease.ErrAuditWrite)
		assert.Empty(t, loadContract(t, db, created.ID).Notes)
	})

	t.Run("terminate", func(t *testing.T) {
		err := failing(models.ActionTerminated).TerminateContract(context.Background(), lease.Anonymous, created.ID, "x")
		assert.ErrorIs(t, err, lease.ErrAuditWrite)
		stored := loadContract(t, db, created.ID)
		assert.Equal(t, models.ContractActive, stored.Status)
		assert.Nil(t, stored.TerminatedDate)
		assert.Equal(t, models.ApartmentRented, testutil.ApartmentStatus(t, db, p.Apartment.ID))
	})

	t.Run("delete", func(t *testing.T) {
		err := failing(models.ActionDeleted).DeleteContract(context.Background(), lease.Anonymous, created.ID)
		assert.ErrorIs(t, err, lease.ErrAuditWrite)
		assert.False(t, loadContract(t, db, created.ID).IsDeleted)
		assert.Equal(t, models.ApartmentRented, testutil.ApartmentStatus(t, db, p.Apartment.ID))
	})

	t.Run("create", func(t *testing.T) {
		other := testutil.SeedApartment(t, db, p, "K101")
		in := newContract(p)
		in.ApartmentID = other.ID
		_, err := failing(models.ActionCreated).CreateContract(context.Background(), lease.Anonymous, in)
		assert.ErrorIs(t, err, lease.ErrAuditWrite)
		assert.Equal(t, int64(0), activeCount(t, db, other.ID))
		assert.Equal(t, models.ApartmentAvailable, testutil.ApartmentStatus(t, db, other.ID))
	})

	history, err := base.History(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestExpiredContextIsTransient(t *testing.T) {
	engine, db, _ := newEngine(t)
	p := testutil.SeedProperty(t, db, "L100")

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := engine.CreateContract(ctx, lease.Anonymous, newContract(p))
	require.Error(t, err)
	assert.ErrorIs(t, err, lease.ErrTransientStorage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.ApartmentAvailable, testutil.ApartmentStatus(t, db, p.Apartment.ID))
}
