// Package telco provides a subscriber billing engine for mobile operators.
//
// Telco is designed as a library, not a service. Import it directly into your
// Go application. It provides:
//
//   - Contract, SIM, and payment state machines with atomic cascades
//   - An append-only balance ledger with per-entry balance snapshots
//   - Tariff plans with allowances and half-up overage rating
//   - Recurring monthly billing anchored to due dates
//   - Pluggable payment gateway integration with a built-in sandbox
//   - A synthetic traffic emulator for load and scenario testing
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/telco"
//	    "github.com/xraph/telco/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	e := telco.New(store, telco.WithGateway(gateway.NewSandbox()))
//
//	// Start the engine (begins background workers)
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
// # Core Concepts
//
// Tariffs define the monthly fee, allowances, and overage prices:
//
//	t := &tariff.Tariff{
//	    Name:            "Standard",
//	    Kind:            tariff.KindPrepaid,
//	    IsActive:        true,
//	    MonthlyFee:      telco.KGS(50000),
//	    MinutesIncluded: 300,
//	    SMSIncluded:     100,
//	    DataGBIncluded:  5,
//	}
//
// Contracts connect customers to tariffs. A contract starts as a
// draft and enters service when a free SIM card is bound to it:
//
//	c, err := e.CreateContract(ctx, customerID, t.ID)
//	c, err = e.ActivateContract(ctx, c.ID, simID)
//
// Every balance mutation is a ledger entry. Debiting below zero
// suspends the contract and its SIM; a credit that brings the balance
// back above zero resumes both:
//
//	entry, err := e.AddBalance(ctx, c.ID, telco.KGS(10000), payment.MethodCash, "top-up")
//
// Billing sweeps drive recurring work: the monthly fee sweep charges
// due contracts, the low balance sweep suspends negative ones, and the
// pending payment sweep settles gateway payments.
//
// # Money
//
// All monetary calculations use integer arithmetic to avoid
// floating-point precision issues. The Money type represents amounts
// in the smallest currency unit (tyiyn for KGS, cents for USD).
// Fractional rating rounds half-up, once per usage dimension.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	ctr_01h2xcejqtf2nbrexx3vqjhp41  // Contract ID
//	sim_01h2xcejqtf2nbrexx3vqjhp41  // SIM ID
//	pay_01h455vb4pex5vsknk084sn02q  // Payment ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package telco
