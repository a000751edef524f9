package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/telco"
	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/sim"
	"github.com/xraph/telco/store"
	"github.com/xraph/telco/tariff"
	"github.com/xraph/telco/traffic"
	"github.com/xraph/telco/types"
)

var (
	ctx = context.Background()
	now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
)

func seedContract(t *testing.T, s *Store) *contract.Contract {
	t.Helper()
	c := contract.New(id.NewCustomerID(), id.NewTariffID(), "kgs", now)
	if err := s.CreateContract(ctx, c); err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}
	return c
}

func seedSIM(t *testing.T, s *Store, iccid, imsi, msisdn string) *sim.SIM {
	t.Helper()
	card := &sim.SIM{
		ID:     id.NewSIMID(),
		ICCID:  iccid,
		IMSI:   imsi,
		MSISDN: msisdn,
		Status: sim.StatusFree,
	}
	if err := s.CreateSIM(ctx, card); err != nil {
		t.Fatalf("CreateSIM failed: %v", err)
	}
	return card
}

func TestTariffCRUD(t *testing.T) {
	s := New()
	tr := &tariff.Tariff{
		ID:         id.NewTariffID(),
		Name:       "Standard",
		Kind:       tariff.KindPrepaid,
		IsActive:   true,
		MonthlyFee: types.KGS(50000),
	}

	if err := s.CreateTariff(ctx, tr); err != nil {
		t.Fatalf("CreateTariff failed: %v", err)
	}
	if err := s.CreateTariff(ctx, tr); !errors.Is(err, telco.ErrAlreadyExists) {
		t.Errorf("duplicate create: expected ErrAlreadyExists, got %v", err)
	}

	got, err := s.GetTariff(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTariff failed: %v", err)
	}
	if got.Name != "Standard" {
		t.Errorf("expected Standard, got %q", got.Name)
	}

	// Returned values are copies, not aliases into the store.
	got.Name = "Mutated"
	again, _ := s.GetTariff(ctx, tr.ID)
	if again.Name != "Standard" {
		t.Error("store state mutated through a returned copy")
	}

	inactive := &tariff.Tariff{ID: id.NewTariffID(), Name: "Legacy", Kind: tariff.KindPrepaid}
	if err := s.CreateTariff(ctx, inactive); err != nil {
		t.Fatal(err)
	}
	active, err := s.ListTariffs(ctx, tariff.ListOpts{ActiveOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != tr.ID {
		t.Errorf("expected only the active tariff, got %d", len(active))
	}

	if _, err := s.GetTariff(ctx, id.NewTariffID()); !errors.Is(err, telco.ErrTariffNotFound) {
		t.Errorf("expected ErrTariffNotFound, got %v", err)
	}
}

func TestSIMUniqueness(t *testing.T) {
	s := New()
	seedSIM(t, s, "8999600000000000001", "437010000000001", "+996700000001")

	dup := &sim.SIM{
		ID:     id.NewSIMID(),
		ICCID:  "8999600000000000001",
		IMSI:   "437010000000002",
		MSISDN: "+996700000002",
		Status: sim.StatusFree,
	}
	if err := s.CreateSIM(ctx, dup); !errors.Is(err, telco.ErrAlreadyExists) {
		t.Errorf("duplicate ICCID: expected ErrAlreadyExists, got %v", err)
	}
}

func TestUpdateSIMVersionConflict(t *testing.T) {
	s := New()
	card := seedSIM(t, s, "8999600000000000001", "437010000000001", "+996700000001")

	a, _ := s.GetSIM(ctx, card.ID)
	b, _ := s.GetSIM(ctx, card.ID)

	if err := s.UpdateSIM(ctx, a); err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	if err := s.UpdateSIM(ctx, b); !errors.Is(err, telco.ErrVersionConflict) {
		t.Errorf("stale update: expected ErrVersionConflict, got %v", err)
	}
}

func TestInContractTxCommit(t *testing.T) {
	s := New()
	c := seedContract(t, s)

	err := s.InContractTx(ctx, c.ID, func(tx store.Tx) error {
		cc, err := tx.Contract(ctx)
		if err != nil {
			return err
		}
		entry, err := payment.New(cc.ID, payment.TypePayment, payment.MethodCash, types.KGS(5000), "top-up", now)
		if err != nil {
			return err
		}
		if _, err := cc.ApplyCredit(types.KGS(5000), now); err != nil {
			return err
		}
		if err := entry.MarkSuccess(cc.Balance, "op", now); err != nil {
			return err
		}
		if err := tx.AppendPayment(ctx, entry); err != nil {
			return err
		}
		return tx.SaveContract(ctx, cc)
	})
	if err != nil {
		t.Fatalf("InContractTx failed: %v", err)
	}

	got, err := s.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Balance.Equal(types.KGS(5000)) {
		t.Errorf("expected balance 5000, got %v", got.Balance)
	}
	entries, err := s.ListPayments(ctx, payment.ListOpts{ContractID: c.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(entries))
	}
	if entries[0].BalanceAfter == nil || !entries[0].BalanceAfter.Equal(types.KGS(5000)) {
		t.Errorf("expected balance_after 5000, got %v", entries[0].BalanceAfter)
	}
}

func TestInContractTxRollback(t *testing.T) {
	s := New()
	c := seedContract(t, s)
	boom := errors.New("boom")

	err := s.InContractTx(ctx, c.ID, func(tx store.Tx) error {
		cc, err := tx.Contract(ctx)
		if err != nil {
			return err
		}
		if _, err := cc.ApplyCredit(types.KGS(5000), now); err != nil {
			return err
		}
		if err := tx.SaveContract(ctx, cc); err != nil {
			return err
		}
		entry, err := payment.New(cc.ID, payment.TypePayment, payment.MethodCash, types.KGS(5000), "", now)
		if err != nil {
			return err
		}
		if err := tx.AppendPayment(ctx, entry); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	got, _ := s.GetContract(ctx, c.ID)
	if !got.Balance.IsZero() {
		t.Errorf("rolled-back tx leaked a balance change: %v", got.Balance)
	}
	entries, _ := s.ListPayments(ctx, payment.ListOpts{ContractID: c.ID})
	if len(entries) != 0 {
		t.Errorf("rolled-back tx leaked %d ledger entries", len(entries))
	}
}

func TestInContractTxStagedReads(t *testing.T) {
	s := New()
	c := seedContract(t, s)

	err := s.InContractTx(ctx, c.ID, func(tx store.Tx) error {
		entry, err := payment.New(c.ID, payment.TypeCharge, payment.MethodSystem, types.KGS(1000), "monthly fee", now)
		if err != nil {
			return err
		}
		entry.BillingPeriod = "2025-04-15"
		if err := entry.MarkSuccess(types.KGS(-1000), "", now); err != nil {
			return err
		}
		if err := tx.AppendPayment(ctx, entry); err != nil {
			return err
		}

		// The staged append must be visible to the idempotency check.
		charged, err := tx.HasChargeForPeriod(ctx, "2025-04-15")
		if err != nil {
			return err
		}
		if !charged {
			t.Error("staged charge invisible to HasChargeForPeriod")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// And to a later transaction after commit.
	err = s.InContractTx(ctx, c.ID, func(tx store.Tx) error {
		charged, err := tx.HasChargeForPeriod(ctx, "2025-04-15")
		if err != nil {
			return err
		}
		if !charged {
			t.Error("committed charge invisible to HasChargeForPeriod")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentDeductsBothApply(t *testing.T) {
	s := New()
	c := seedContract(t, s)

	deduct := func() error {
		return s.InContractTx(ctx, c.ID, func(tx store.Tx) error {
			cc, err := tx.Contract(ctx)
			if err != nil {
				return err
			}
			cc.Balance = cc.Balance.Subtract(types.KGS(100))
			return tx.SaveContract(ctx, cc)
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = deduct()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("deduct %d failed: %v", i, err)
		}
	}

	got, _ := s.GetContract(ctx, c.ID)
	if !got.Balance.Equal(types.KGS(-200)) {
		t.Errorf("lost update: expected -200, got %v", got.Balance)
	}
}

func TestConcurrentBindOneFreeSIM(t *testing.T) {
	s := New()
	card := seedSIM(t, s, "8999600000000000001", "437010000000001", "+996700000001")
	c1 := seedContract(t, s)
	c2 := seedContract(t, s)

	bind := func(contractID id.ContractID) error {
		return s.InContractTx(ctx, contractID, func(tx store.Tx) error {
			cc, err := tx.Contract(ctx)
			if err != nil {
				return err
			}
			card, err := tx.SIM(ctx, card.ID)
			if err != nil {
				return err
			}
			if err := card.Bind(cc.ID, now); err != nil {
				return err
			}
			if _, err := cc.Activate(card.ID, now); err != nil {
				return err
			}
			if err := tx.SaveSIM(ctx, card); err != nil {
				return err
			}
			return tx.SaveContract(ctx, cc)
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, ctr := range []*contract.Contract{c1, c2} {
		wg.Add(1)
		go func(i int, ctrID id.ContractID) {
			defer wg.Done()
			errs[i] = bind(ctrID)
		}(i, ctr.ID)
	}
	wg.Wait()

	var succeeded, notFree int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, sim.ErrNotFree):
			notFree++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || notFree != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d not-free", succeeded, notFree)
	}

	got, _ := s.GetSIM(ctx, card.ID)
	if got.Status != sim.StatusActive {
		t.Errorf("expected active card, got %s", got.Status)
	}
}

func TestMetrics(t *testing.T) {
	s := New()

	batch := []*traffic.Metric{
		{ID: id.NewMetricID(), Calls: 3, Charges: types.KGS(450), Source: traffic.SourceEmulator, RecordedAt: now},
		{ID: id.NewMetricID(), SMS: 2, Charges: types.KGS(200), Source: traffic.SourceEmulator, RecordedAt: now.Add(time.Minute)},
	}
	if err := s.InsertMetrics(ctx, batch); err != nil {
		t.Fatalf("InsertMetrics failed: %v", err)
	}

	got, err := s.ListMetrics(ctx, traffic.ListOpts{Source: traffic.SourceEmulator})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(got))
	}

	purged, err := s.PurgeMetrics(ctx, now.Add(30*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged, got %d", purged)
	}
}

func TestContractStats(t *testing.T) {
	s := New()

	active := seedContract(t, s)
	if err := s.InContractTx(ctx, active.ID, func(tx store.Tx) error {
		cc, err := tx.Contract(ctx)
		if err != nil {
			return err
		}
		if _, err := cc.Activate(id.NewSIMID(), now); err != nil {
			return err
		}
		if _, err := cc.ApplyCredit(types.KGS(10000), now); err != nil {
			return err
		}
		return tx.SaveContract(ctx, cc)
	}); err != nil {
		t.Fatal(err)
	}
	seedContract(t, s) // stays draft with zero balance

	stats, err := s.ContractStats(ctx)
	if err != nil {
		t.Fatalf("ContractStats failed: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("expected total 2, got %d", stats.Total)
	}
	if stats.ByStatus[contract.StatusActive] != 1 || stats.ByStatus[contract.StatusDraft] != 1 {
		t.Errorf("unexpected status counts: %v", stats.ByStatus)
	}
	if stats.TotalBalance != 10000 {
		t.Errorf("expected total balance 10000, got %d", stats.TotalBalance)
	}
	if stats.AvgBalance != 10000 {
		t.Errorf("expected avg active balance 10000, got %d", stats.AvgBalance)
	}
}

func TestBillingDueSelector(t *testing.T) {
	s := New()

	due := seedContract(t, s)
	if err := s.InContractTx(ctx, due.ID, func(tx store.Tx) error {
		cc, err := tx.Contract(ctx)
		if err != nil {
			return err
		}
		if _, err := cc.Activate(id.NewSIMID(), now.AddDate(0, -2, 0)); err != nil {
			return err
		}
		return tx.SaveContract(ctx, cc)
	}); err != nil {
		t.Fatal(err)
	}
	seedContract(t, s) // draft, never selected

	selected, err := s.ListContractsBillingDue(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) != 1 || selected[0].ID != due.ID {
		t.Fatalf("expected only the overdue contract, got %d", len(selected))
	}
}
