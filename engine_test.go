package telco_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/telco"
	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/gateway"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/notify"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/sim"
	"github.com/xraph/telco/store/memory"
	"github.com/xraph/telco/tariff"
	"github.com/xraph/telco/traffic"
	"github.com/xraph/telco/types"
)

// testClock is a manually advanced time source.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time           { return c.now }
func (c *testClock) Advance(d time.Duration)  { c.now = c.now.Add(d) }
func (c *testClock) AdvanceMonths(months int) { c.now = c.now.AddDate(0, months, 0) }

type fixture struct {
	engine  *telco.Engine
	store   *memory.Store
	gateway *gateway.Sandbox
	feed    *notify.Feed
	clock   *testClock
	tariff  *tariff.Tariff
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	clock := &testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	st := memory.New()
	gw := gateway.NewSandbox(gateway.WithSeed(42))
	feed := notify.NewFeed(notify.DefaultFeedSize)

	e := telco.New(st,
		telco.WithClock(clock.Now),
		telco.WithGateway(gw),
		telco.WithNotifier(feed),
	)

	tr := &tariff.Tariff{
		Name:              "Standard",
		Kind:              tariff.KindPrepaid,
		IsActive:          true,
		MonthlyFee:        types.KGS(50000),
		MinutesIncluded:   300,
		SMSIncluded:       100,
		DataGBIncluded:    5,
		MinuteOverageCost: types.KGS(150),
		SMSOverageCost:    types.KGS(100),
		DataGBOverageCost: types.KGS(1000),
	}
	if err := e.CreateTariff(ctx, tr); err != nil {
		t.Fatalf("CreateTariff failed: %v", err)
	}

	return &fixture{engine: e, store: st, gateway: gw, feed: feed, clock: clock, tariff: tr}
}

func (f *fixture) newSIM(t *testing.T, suffix string) *sim.SIM {
	t.Helper()
	card := &sim.SIM{
		ICCID:  "899960000000000" + suffix,
		IMSI:   "43701000000" + suffix,
		MSISDN: "+99670000" + suffix,
		PUK:    "12345678",
	}
	if err := f.engine.RegisterSIM(context.Background(), card); err != nil {
		t.Fatalf("RegisterSIM failed: %v", err)
	}
	return card
}

// activeContract creates, activates and funds a contract.
func (f *fixture) activeContract(t *testing.T, suffix string, balance types.Money) *contract.Contract {
	t.Helper()
	ctx := context.Background()

	c, err := f.engine.CreateContract(ctx, id.NewCustomerID(), f.tariff.ID)
	if err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}
	card := f.newSIM(t, suffix)
	c, err = f.engine.ActivateContract(ctx, c.ID, card.ID)
	if err != nil {
		t.Fatalf("ActivateContract failed: %v", err)
	}
	if balance.IsPositive() {
		if _, err := f.engine.AddBalance(ctx, c.ID, balance, payment.MethodCash, "initial"); err != nil {
			t.Fatalf("AddBalance failed: %v", err)
		}
	}
	c, err = f.engine.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestContractLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.engine.CreateContract(ctx, id.NewCustomerID(), f.tariff.ID)
	if err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}
	if c.Status != contract.StatusDraft {
		t.Fatalf("expected draft, got %s", c.Status)
	}
	if !c.Balance.IsZero() || c.Balance.Currency != "kgs" {
		t.Errorf("expected zero kgs balance, got %v", c.Balance)
	}

	card := f.newSIM(t, "0001")
	c, err = f.engine.ActivateContract(ctx, c.ID, card.ID)
	if err != nil {
		t.Fatalf("ActivateContract failed: %v", err)
	}
	if c.Status != contract.StatusActive {
		t.Errorf("expected active, got %s", c.Status)
	}
	wantNext := f.clock.Now().AddDate(0, 1, 0)
	if c.NextBillingDate == nil || !c.NextBillingDate.Equal(wantNext) {
		t.Errorf("expected next billing %v, got %v", wantNext, c.NextBillingDate)
	}

	gotCard, _ := f.engine.GetSIM(ctx, card.ID)
	if gotCard.Status != sim.StatusActive || gotCard.ContractID != c.ID {
		t.Errorf("expected bound active card, got %s bound to %v", gotCard.Status, gotCard.ContractID)
	}

	// A second activation attempt must fail without side effects.
	if _, err := f.engine.ActivateContract(ctx, c.ID, card.ID); !errors.Is(err, contract.ErrNotDraft) {
		t.Errorf("double activation: expected ErrNotDraft, got %v", err)
	}

	c, err = f.engine.TerminateContract(ctx, c.ID)
	if err != nil {
		t.Fatalf("TerminateContract failed: %v", err)
	}
	if c.Status != contract.StatusTerminated || !c.SIMID.IsNil() {
		t.Errorf("expected terminated contract without SIM, got %s / %v", c.Status, c.SIMID)
	}
	gotCard, _ = f.engine.GetSIM(ctx, card.ID)
	if gotCard.Status != sim.StatusFree || !gotCard.ContractID.IsNil() {
		t.Errorf("expected released card, got %s bound to %v", gotCard.Status, gotCard.ContractID)
	}
}

func TestActivationRequiresFreeSIM(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.activeContract(t, "0001", types.KGS(10000))

	second, err := f.engine.CreateContract(ctx, id.NewCustomerID(), f.tariff.ID)
	if err != nil {
		t.Fatal(err)
	}
	taken, _ := f.engine.GetSIMByMSISDN(ctx, "+996700000001")
	if _, err := f.engine.ActivateContract(ctx, second.ID, taken.ID); !errors.Is(err, sim.ErrNotFree) {
		t.Errorf("expected ErrNotFree, got %v", err)
	}

	// The losing contract stays draft.
	second, _ = f.engine.GetContract(ctx, second.ID)
	if second.Status != contract.StatusDraft {
		t.Errorf("expected draft after failed activation, got %s", second.Status)
	}
}

func TestCreateContractRejectsArchivedTariff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.engine.ArchiveTariff(ctx, f.tariff.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.CreateContract(ctx, id.NewCustomerID(), f.tariff.ID); !errors.Is(err, telco.ErrTariffArchived) {
		t.Errorf("expected ErrTariffArchived, got %v", err)
	}
}

func TestAutoSuspendAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "0001", types.KGS(10000))

	// Debit beyond the balance: contract and SIM suspend together.
	entry, err := f.engine.DeductBalance(ctx, c.ID, types.KGS(15000), "usage")
	if err != nil {
		t.Fatalf("DeductBalance failed: %v", err)
	}
	if entry.BalanceAfter == nil || !entry.BalanceAfter.Equal(types.KGS(-5000)) {
		t.Errorf("expected balance_after -5000, got %v", entry.BalanceAfter)
	}

	c, _ = f.engine.GetContract(ctx, c.ID)
	if c.Status != contract.StatusSuspended {
		t.Fatalf("expected suspended, got %s", c.Status)
	}
	card, _ := f.engine.GetSIM(ctx, c.SIMID)
	if card.Status != sim.StatusSuspended {
		t.Errorf("expected suspended card, got %s", card.Status)
	}

	// A credit up to exactly zero keeps the contract suspended.
	if _, err := f.engine.AddBalance(ctx, c.ID, types.KGS(5000), payment.MethodCash, ""); err != nil {
		t.Fatal(err)
	}
	c, _ = f.engine.GetContract(ctx, c.ID)
	if c.Status != contract.StatusSuspended {
		t.Errorf("zero balance: expected still suspended, got %s", c.Status)
	}

	// Crossing into positive resumes contract and SIM.
	if _, err := f.engine.AddBalance(ctx, c.ID, types.KGS(100), payment.MethodCash, ""); err != nil {
		t.Fatal(err)
	}
	c, _ = f.engine.GetContract(ctx, c.ID)
	if c.Status != contract.StatusActive {
		t.Fatalf("expected resumed, got %s", c.Status)
	}
	card, _ = f.engine.GetSIM(ctx, c.SIMID)
	if card.Status != sim.StatusActive {
		t.Errorf("expected resumed card, got %s", card.Status)
	}

	// Suspension and resume notices reached the feed.
	kinds := map[notify.Kind]bool{}
	for _, n := range f.feed.ForContract(c.ID) {
		kinds[n.Kind] = true
	}
	if !kinds[notify.KindSuspended] || !kinds[notify.KindResumed] {
		t.Errorf("expected suspended and resumed notifications, got %v", kinds)
	}
}

func TestChargeMonthlyFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "0001", types.KGS(200000))
	due := *c.NextBillingDate

	// Not due yet.
	if _, err := f.engine.ChargeMonthlyFee(ctx, c.ID); !errors.Is(err, telco.ErrBillingNotDue) {
		t.Fatalf("expected ErrBillingNotDue, got %v", err)
	}

	// The sweep runs 10 days late; the cycle must not drift.
	f.clock.AdvanceMonths(1)
	f.clock.Advance(10 * 24 * time.Hour)

	entry, err := f.engine.ChargeMonthlyFee(ctx, c.ID)
	if err != nil {
		t.Fatalf("ChargeMonthlyFee failed: %v", err)
	}
	if !entry.Amount.Equal(f.tariff.MonthlyFee) {
		t.Errorf("expected fee %v, got %v", f.tariff.MonthlyFee, entry.Amount)
	}
	if entry.BillingPeriod != due.Format("2006-01-02") {
		t.Errorf("expected billing period %s, got %s", due.Format("2006-01-02"), entry.BillingPeriod)
	}

	c, _ = f.engine.GetContract(ctx, c.ID)
	wantNext := due.AddDate(0, 1, 0)
	if c.NextBillingDate == nil || !c.NextBillingDate.Equal(wantNext) {
		t.Errorf("expected next billing anchored at %v, got %v", wantNext, c.NextBillingDate)
	}
	if !c.Balance.Equal(types.KGS(150000)) {
		t.Errorf("expected balance 150000, got %v", c.Balance)
	}

	// The advanced cycle is not due again until next month.
	if _, err := f.engine.ChargeMonthlyFee(ctx, c.ID); !errors.Is(err, telco.ErrBillingNotDue) {
		t.Errorf("expected ErrBillingNotDue after charge, got %v", err)
	}
}

func TestRecordUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "0001", types.KGS(100000))

	// Within allowances: no charge, no entry.
	entry, err := f.engine.RecordUsage(ctx, c.ID, tariff.Usage{Minutes: 100, SMS: 20, DataGB: 1})
	if err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected no charge within allowances, got %v", entry.Amount)
	}

	// 50 minutes and 2.5 GB over: 50*150 + 2.5*1000 = 10000.
	entry, err = f.engine.RecordUsage(ctx, c.ID, tariff.Usage{Minutes: 350, SMS: 100, DataGB: 7.5})
	if err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	if entry == nil || !entry.Amount.Equal(types.KGS(10000)) {
		t.Fatalf("expected overage charge 10000, got %v", entry)
	}

	c, _ = f.engine.GetContract(ctx, c.ID)
	if !c.Balance.Equal(types.KGS(90000)) {
		t.Errorf("expected balance 90000, got %v", c.Balance)
	}
}

func TestGatewayPaymentFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "0001", types.KGS(1000))

	entry, link, err := f.engine.CreatePaymentLink(ctx, c.ID, types.KGS(30000))
	if err != nil {
		t.Fatalf("CreatePaymentLink failed: %v", err)
	}
	if entry.Status != payment.StatusPending || entry.TransactionID != link.TransactionID {
		t.Fatalf("expected pending entry bound to transaction, got %s / %s", entry.Status, entry.TransactionID)
	}

	// Balance is untouched until settlement.
	c, _ = f.engine.GetContract(ctx, c.ID)
	if !c.Balance.Equal(types.KGS(1000)) {
		t.Fatalf("pending payment leaked into balance: %v", c.Balance)
	}

	if err := f.gateway.Complete(link.TransactionID); err != nil {
		t.Fatal(err)
	}
	settled, err := f.engine.SettlePayment(ctx, link.TransactionID)
	if err != nil {
		t.Fatalf("SettlePayment failed: %v", err)
	}
	if settled.Status != payment.StatusSuccess {
		t.Fatalf("expected success, got %s", settled.Status)
	}
	if settled.BalanceAfter == nil || !settled.BalanceAfter.Equal(types.KGS(31000)) {
		t.Errorf("expected balance_after 31000, got %v", settled.BalanceAfter)
	}

	// Settling again is a no-op.
	again, err := f.engine.SettlePayment(ctx, link.TransactionID)
	if err != nil {
		t.Fatalf("repeat settle failed: %v", err)
	}
	if !again.BalanceAfter.Equal(types.KGS(31000)) {
		t.Errorf("repeat settle changed the snapshot: %v", again.BalanceAfter)
	}
	c, _ = f.engine.GetContract(ctx, c.ID)
	if !c.Balance.Equal(types.KGS(31000)) {
		t.Errorf("repeat settle changed the balance: %v", c.Balance)
	}
}

func TestGatewayPaymentDeclined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "0001", types.KGS(1000))
	_, link, err := f.engine.CreatePaymentLink(ctx, c.ID, types.KGS(30000))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.gateway.Fail(link.TransactionID); err != nil {
		t.Fatal(err)
	}

	settled, err := f.engine.SettlePayment(ctx, link.TransactionID)
	if err != nil {
		t.Fatalf("SettlePayment failed: %v", err)
	}
	if settled.Status != payment.StatusFailed {
		t.Errorf("expected failed, got %s", settled.Status)
	}
	c, _ = f.engine.GetContract(ctx, c.ID)
	if !c.Balance.Equal(types.KGS(1000)) {
		t.Errorf("failed payment touched the balance: %v", c.Balance)
	}
}

func TestManualPaymentReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "0001", types.KGS(1000))

	submitted, err := f.engine.SubmitPayment(ctx, c.ID, types.KGS(20000), payment.MethodBank, "transfer #4411")
	if err != nil {
		t.Fatalf("SubmitPayment failed: %v", err)
	}
	if submitted.Status != payment.StatusPending {
		t.Fatalf("expected pending, got %s", submitted.Status)
	}

	approved, err := f.engine.ApprovePayment(ctx, submitted.ID, "operator-7")
	if err != nil {
		t.Fatalf("ApprovePayment failed: %v", err)
	}
	if approved.ProcessedBy != "operator-7" {
		t.Errorf("expected processed_by operator-7, got %q", approved.ProcessedBy)
	}
	if approved.BalanceAfter == nil || !approved.BalanceAfter.Equal(types.KGS(21000)) {
		t.Errorf("expected balance_after 21000, got %v", approved.BalanceAfter)
	}

	// Approving twice fails.
	if _, err := f.engine.ApprovePayment(ctx, submitted.ID, "operator-7"); !errors.Is(err, payment.ErrNotPending) {
		t.Errorf("expected ErrNotPending, got %v", err)
	}

	rejected, err := f.engine.SubmitPayment(ctx, c.ID, types.KGS(500), payment.MethodCash, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.RejectPayment(ctx, rejected.ID, "operator-7", "counterfeit note"); err != nil {
		t.Fatalf("RejectPayment failed: %v", err)
	}
	got, _ := f.engine.GetPayment(ctx, rejected.ID)
	if got.Status != payment.StatusFailed || got.FailureReason != "counterfeit note" {
		t.Errorf("expected failed with reason, got %s / %q", got.Status, got.FailureReason)
	}
}

func TestRefundPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "0001", types.KGS(0))
	original, err := f.engine.AddBalance(ctx, c.ID, types.KGS(40000), payment.MethodCash, "top-up")
	if err != nil {
		t.Fatal(err)
	}

	refund, err := f.engine.RefundPayment(ctx, original.ID, "operator-7", "wrong account")
	if err != nil {
		t.Fatalf("RefundPayment failed: %v", err)
	}
	if refund.Type != payment.TypeRefund || refund.RefundOf != original.ID {
		t.Errorf("expected linked refund entry, got %s / %v", refund.Type, refund.RefundOf)
	}

	got, _ := f.engine.GetPayment(ctx, original.ID)
	if got.Status != payment.StatusRefunded {
		t.Errorf("expected original refunded, got %s", got.Status)
	}

	c, _ = f.engine.GetContract(ctx, c.ID)
	if !c.Balance.IsZero() {
		t.Errorf("expected zero balance after refund, got %v", c.Balance)
	}

	// A refunded payment cannot be refunded again.
	if _, err := f.engine.RefundPayment(ctx, original.ID, "operator-7", "again"); !errors.Is(err, payment.ErrNotRefundable) {
		t.Errorf("expected ErrNotRefundable, got %v", err)
	}
}

func TestCurrencyMismatchRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "0001", types.KGS(1000))
	if _, err := f.engine.AddBalance(ctx, c.ID, types.USD(100), payment.MethodCash, ""); !errors.Is(err, telco.ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestMonthlyFeeSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	funded := f.activeContract(t, "0001", types.KGS(200000))
	broke := f.activeContract(t, "0002", types.KGS(1000))
	draft, err := f.engine.CreateContract(ctx, id.NewCustomerID(), f.tariff.ID)
	if err != nil {
		t.Fatal(err)
	}

	f.clock.AdvanceMonths(1)
	f.clock.Advance(time.Hour)

	result, err := f.engine.RunMonthlyFeeSweep(ctx)
	if err != nil {
		t.Fatalf("RunMonthlyFeeSweep failed: %v", err)
	}
	if result.Total != 2 || result.Succeeded != 2 || result.Failed != 0 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}

	fundedAfter, _ := f.engine.GetContract(ctx, funded.ID)
	if !fundedAfter.Balance.Equal(types.KGS(150000)) || fundedAfter.Status != contract.StatusActive {
		t.Errorf("funded contract: got %v / %s", fundedAfter.Balance, fundedAfter.Status)
	}

	// The underfunded contract went negative and auto-suspended.
	brokeAfter, _ := f.engine.GetContract(ctx, broke.ID)
	if !brokeAfter.Balance.Equal(types.KGS(-49000)) || brokeAfter.Status != contract.StatusSuspended {
		t.Errorf("underfunded contract: got %v / %s", brokeAfter.Balance, brokeAfter.Status)
	}

	// Drafts are never swept.
	draftAfter, _ := f.engine.GetContract(ctx, draft.ID)
	if draftAfter.Status != contract.StatusDraft || !draftAfter.Balance.IsZero() {
		t.Errorf("draft contract was touched: %v / %s", draftAfter.Balance, draftAfter.Status)
	}

	// A rerun in the same period has nothing to do.
	rerun, err := f.engine.RunMonthlyFeeSweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rerun.Succeeded != 0 {
		t.Errorf("rerun charged %d contracts in an already-billed period", rerun.Succeeded)
	}
}

func TestPendingPaymentSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "0001", types.KGS(0))
	_, link, err := f.engine.CreatePaymentLink(ctx, c.ID, types.KGS(25000))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.gateway.Complete(link.TransactionID); err != nil {
		t.Fatal(err)
	}

	// Manual pending payments are not the sweep's business.
	if _, err := f.engine.SubmitPayment(ctx, c.ID, types.KGS(100), payment.MethodCash, ""); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(time.Hour)
	result, err := f.engine.RunPendingPaymentSweep(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("RunPendingPaymentSweep failed: %v", err)
	}
	if result.Succeeded != 1 || result.Skipped != 1 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}

	c, _ = f.engine.GetContract(ctx, c.ID)
	if !c.Balance.Equal(types.KGS(25000)) {
		t.Errorf("expected balance 25000 after sweep, got %v", c.Balance)
	}
}

func TestLowBalanceSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "0001", types.KGS(0))

	// Drive the balance negative through a refund of an already
	// partially spent top-up.
	top, err := f.engine.AddBalance(ctx, c.ID, types.KGS(30000), payment.MethodCash, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.DeductBalance(ctx, c.ID, types.KGS(15000), "usage"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.RefundPayment(ctx, top.ID, "operator-7", "chargeback"); err != nil {
		t.Fatal(err)
	}

	// The refund cascade already suspended the contract.
	c, _ = f.engine.GetContract(ctx, c.ID)
	if c.Status != contract.StatusSuspended {
		t.Fatalf("expected suspended after negative refund, got %s", c.Status)
	}

	result, err := f.engine.RunLowBalanceSweep(ctx)
	if err != nil {
		t.Fatalf("RunLowBalanceSweep failed: %v", err)
	}
	// Already suspended, so the sweep skips it.
	if result.Total != 1 || result.Skipped != 1 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.activeContract(t, "0001", types.KGS(10000))
	f.activeContract(t, "0002", types.KGS(30000))

	stats, err := f.engine.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if stats.Total != 2 || stats.ByStatus[contract.StatusActive] != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.TotalBalance != 40000 || stats.AvgBalance != 20000 {
		t.Errorf("unexpected balances: total %d avg %d", stats.TotalBalance, stats.AvgBalance)
	}
}

func TestBlockAndUnblockSIM(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "0001", types.KGS(10000))

	if err := f.engine.BlockSIM(ctx, c.SIMID, "reported stolen"); err != nil {
		t.Fatalf("BlockSIM failed: %v", err)
	}
	card, _ := f.engine.GetSIM(ctx, c.SIMID)
	if card.Status != sim.StatusBlocked {
		t.Fatalf("expected blocked, got %s", card.Status)
	}

	// Contract state is unaffected by a card-level block.
	c, _ = f.engine.GetContract(ctx, c.ID)
	if c.Status != contract.StatusActive {
		t.Errorf("expected contract still active, got %s", c.Status)
	}

	if err := f.engine.UnblockSIM(ctx, card.ID, "00000000"); err == nil {
		t.Error("expected wrong PUK to be rejected")
	}
	if err := f.engine.UnblockSIM(ctx, card.ID, "12345678"); err != nil {
		t.Fatalf("UnblockSIM failed: %v", err)
	}
	card, _ = f.engine.GetSIM(ctx, card.ID)
	if card.Status != sim.StatusActive {
		t.Errorf("expected active after unblock, got %s", card.Status)
	}
}

func TestTrafficBuffering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.engine.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		err := f.engine.RecordTraffic(ctx, &traffic.Metric{
			Calls:   int64(i + 1),
			Charges: types.KGS(100),
			Source:  traffic.SourceEmulator,
		})
		if err != nil {
			t.Fatalf("RecordTraffic failed: %v", err)
		}
	}

	// Stop drains the buffer with a final flush.
	if err := f.engine.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	got, err := f.store.ListMetrics(ctx, traffic.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Errorf("expected 5 flushed metrics, got %d", len(got))
	}
}
