package emulator

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/telco"
	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/sim"
	"github.com/xraph/telco/store/memory"
	"github.com/xraph/telco/tariff"
	"github.com/xraph/telco/traffic"
	"github.com/xraph/telco/types"
)

func testEngine(t *testing.T) (*telco.Engine, *memory.Store) {
	t.Helper()
	st := memory.New()
	e := telco.New(st, telco.WithTrafficConfig(10, 50*time.Millisecond))
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Stop() })
	return e, st
}

func seedSubscribers(t *testing.T, e *telco.Engine, n int, balance types.Money) []*contract.Contract {
	t.Helper()
	ctx := context.Background()

	tr := &tariff.Tariff{
		Name:       "Emu",
		Kind:       tariff.KindPrepaid,
		IsActive:   true,
		MonthlyFee: types.KGS(50000),
	}
	if err := e.CreateTariff(ctx, tr); err != nil {
		t.Fatal(err)
	}

	out := make([]*contract.Contract, 0, n)
	for i := 0; i < n; i++ {
		suffix := []byte{'0', '0', '0', byte('1' + i)}
		card := &sim.SIM{
			ICCID:  "899960000000000" + string(suffix),
			IMSI:   "43701000000" + string(suffix),
			MSISDN: "+99670000" + string(suffix),
		}
		if err := e.RegisterSIM(ctx, card); err != nil {
			t.Fatal(err)
		}
		c, err := e.CreateContract(ctx, id.NewCustomerID(), tr.ID)
		if err != nil {
			t.Fatal(err)
		}
		if c, err = e.ActivateContract(ctx, c.ID, card.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := e.AddBalance(ctx, c.ID, balance, payment.MethodCash, "seed"); err != nil {
			t.Fatal(err)
		}
		out = append(out, c)
	}
	return out
}

func TestRunChargesAndBalancesReconcile(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	subscribers := seedSubscribers(t, e, 3, types.KGS(500000))

	em := New(e, Config{
		CallRate:    5,
		SMSRate:     3,
		DataRateMB:  100,
		CallPrice:   types.KGS(150),
		SMSPrice:    types.KGS(100),
		DataPriceMB: types.KGS(10),
		Seed:        7,
	})

	summary, err := em.Run(ctx, 10)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Ticks != 10 {
		t.Fatalf("expected 10 ticks, got %d", summary.Ticks)
	}
	if summary.ChargeFails != 0 {
		t.Errorf("unexpected charge failures: %d", summary.ChargeFails)
	}

	// Every som charged must show up in the subscribers' ledgers.
	var ledgerTotal int64
	for _, c := range subscribers {
		entries, err := e.ListPayments(ctx, payment.ListOpts{
			ContractID: c.ID,
			Type:       payment.TypeCharge,
		})
		if err != nil {
			t.Fatal(err)
		}
		for _, entry := range entries {
			ledgerTotal += entry.Amount.Amount
		}
	}
	if ledgerTotal != summary.Charged.Amount {
		t.Errorf("summary charged %d but ledgers hold %d", summary.Charged.Amount, ledgerTotal)
	}

	// And in the balances.
	for _, c := range subscribers {
		got, _ := e.GetContract(ctx, c.ID)
		if got.Balance.GreaterThan(types.KGS(500000)) {
			t.Errorf("balance grew without a top-up: %v", got.Balance)
		}
	}
}

func TestRunSplitsChargesPerUsageDimension(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	subscribers := seedSubscribers(t, e, 1, types.KGS(1000000))

	cfg := Config{
		CallRate:    5,
		SMSRate:     4,
		DataRateMB:  100,
		CallPrice:   types.KGS(150),
		SMSPrice:    types.KGS(100),
		DataPriceMB: types.KGS(10),
		Seed:        13,
	}
	em := New(e, cfg)

	summary, err := em.Run(ctx, 8)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.ChargeFails != 0 {
		t.Fatalf("unexpected charge failures: %d", summary.ChargeFails)
	}

	entries, err := e.ListPayments(ctx, payment.ListOpts{
		ContractID: subscribers[0].ID,
		Type:       payment.TypeCharge,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Every charge entry belongs to exactly one usage dimension.
	sums := map[string]int64{}
	for _, entry := range entries {
		switch entry.Description {
		case "voice traffic", "SMS traffic", "data traffic":
			sums[entry.Description] += entry.Amount.Amount
		default:
			t.Errorf("unexpected charge description %q", entry.Description)
		}
	}

	// Voice and SMS entries reconstruct exactly from the counters.
	if want := cfg.CallPrice.Multiply(summary.Calls).Amount; sums["voice traffic"] != want {
		t.Errorf("voice entries sum to %d, want %d", sums["voice traffic"], want)
	}
	if want := cfg.SMSPrice.Multiply(summary.SMS).Amount; sums["SMS traffic"] != want {
		t.Errorf("SMS entries sum to %d, want %d", sums["SMS traffic"], want)
	}

	// Data rounds per draw, so reconcile it against the grand total.
	rest := summary.Charged.Amount - sums["voice traffic"] - sums["SMS traffic"]
	if sums["data traffic"] != rest {
		t.Errorf("data entries sum to %d, want %d", sums["data traffic"], rest)
	}
	if summary.DataMB > 1 && sums["data traffic"] == 0 {
		t.Error("data consumed but no data charge entries appended")
	}
}

func TestChargeFailureStillCountsUsage(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	seedSubscribers(t, e, 1, types.KGS(100000))

	// A subscriber on a dollar tariff: every som-priced charge against
	// it fails, but its calls still happened.
	usdTariff := &tariff.Tariff{
		Name:       "Roamer",
		Kind:       tariff.KindPrepaid,
		IsActive:   true,
		MonthlyFee: types.USD(900),
	}
	if err := e.CreateTariff(ctx, usdTariff); err != nil {
		t.Fatal(err)
	}
	card := &sim.SIM{
		ICCID:  "8999600000000000009",
		IMSI:   "437010000000009",
		MSISDN: "+996700000009",
	}
	if err := e.RegisterSIM(ctx, card); err != nil {
		t.Fatal(err)
	}
	roamer, err := e.CreateContract(ctx, id.NewCustomerID(), usdTariff.ID)
	if err != nil {
		t.Fatal(err)
	}
	if roamer, err = e.ActivateContract(ctx, roamer.ID, card.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddBalance(ctx, roamer.ID, types.USD(10000), payment.MethodCash, "seed"); err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		CallRate:  4,
		CallPrice: types.KGS(150),
		Seed:      5,
	}
	em := New(e, cfg)

	summary, err := em.Run(ctx, 10)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.ChargeFails == 0 {
		t.Fatal("expected charge failures for the mismatched contract")
	}
	if summary.Calls == 0 {
		t.Fatal("no calls drawn over 10 ticks")
	}

	// Charged covers only the successful entries, while the counters
	// include the failed contract's usage.
	implied := cfg.CallPrice.Multiply(summary.Calls)
	if !summary.Charged.LessThan(implied) {
		t.Errorf("charged %v covers all %d counted calls; failed usage was not counted",
			summary.Charged, summary.Calls)
	}

	// The failed contract's balance never moved.
	after, err := e.GetContract(ctx, roamer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !after.Balance.Equal(types.USD(10000)) {
		t.Errorf("mismatched contract balance moved: %v", after.Balance)
	}
}

func TestRunEmitsMetricsOnlyForActiveTicks(t *testing.T) {
	e, st := testEngine(t)
	ctx := context.Background()
	seedSubscribers(t, e, 2, types.KGS(100000))

	em := New(e, Config{
		CallRate:  2,
		CallPrice: types.KGS(150),
		SMSPrice:  types.KGS(100),
		// Zero SMS and data rates: metrics still possible via calls.
		DataPriceMB: types.KGS(10),
		Seed:        3,
	})

	summary, err := em.Run(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}

	metrics, err := st.ListMetrics(ctx, traffic.ListOpts{Source: traffic.SourceEmulator})
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) > summary.Ticks {
		t.Fatalf("more metrics than ticks: %d > %d", len(metrics), summary.Ticks)
	}
	var metricCalls int64
	for _, m := range metrics {
		if !m.HasActivity() {
			t.Error("stored metric with no activity")
		}
		metricCalls += m.Calls
	}
	if metricCalls != summary.Calls {
		t.Errorf("metrics record %d calls, summary %d", metricCalls, summary.Calls)
	}
}

func TestRunWithZeroRatesIsQuiet(t *testing.T) {
	e, st := testEngine(t)
	ctx := context.Background()
	seedSubscribers(t, e, 2, types.KGS(100000))

	em := New(e, Config{
		CallPrice:   types.KGS(150),
		SMSPrice:    types.KGS(100),
		DataPriceMB: types.KGS(10),
		Seed:        1,
	})

	summary, err := em.Run(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Calls != 0 || summary.SMS != 0 || summary.DataMB != 0 {
		t.Errorf("zero rates still produced traffic: %+v", summary)
	}
	if !summary.Charged.IsZero() {
		t.Errorf("zero rates still charged: %v", summary.Charged)
	}

	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	metrics, _ := st.ListMetrics(ctx, traffic.ListOpts{})
	if len(metrics) != 0 {
		t.Errorf("quiet run left %d metrics", len(metrics))
	}
}

func TestAutoTopUpKeepsSubscribersFunded(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	subscribers := seedSubscribers(t, e, 2, types.KGS(3000))

	em := New(e, Config{
		CallRate:       5,
		CallPrice:      types.KGS(500),
		SMSPrice:       types.KGS(100),
		DataPriceMB:    types.KGS(10),
		TopUpThreshold: types.KGS(2000),
		TopUpAmount:    types.KGS(10000),
		Seed:           11,
	})

	summary, err := em.Run(ctx, 20)
	if err != nil {
		t.Fatal(err)
	}

	if summary.TopUps == 0 {
		t.Fatal("expected at least one auto top-up over 20 expensive ticks")
	}
	if !summary.ToppedUp.IsPositive() {
		t.Errorf("top-ups recorded but nothing credited: %v", summary.ToppedUp)
	}

	var topUpEntries int64
	for _, c := range subscribers {
		got, _ := e.GetContract(ctx, c.ID)
		// A top-up refills well past the worst-case tick charge, so
		// nobody can end deep in the red.
		if got.Balance.Amount < -2500 {
			t.Errorf("auto top-up failed to keep up: %v", got.Balance)
		}

		entries, err := e.ListPayments(ctx, payment.ListOpts{
			ContractID: c.ID,
			Status:     payment.StatusSuccess,
		})
		if err != nil {
			t.Fatal(err)
		}
		for _, entry := range entries {
			if entry.Method == payment.MethodAutoTopUp {
				topUpEntries++
			}
		}
	}
	if topUpEntries != summary.TopUps {
		t.Errorf("summary counts %d top-ups, ledgers hold %d", summary.TopUps, topUpEntries)
	}
}
