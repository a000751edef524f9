// Package mongo implements the store on MongoDB. Contract
// transactions use multi-document transactions, so the deployment must
// be a replica set (a single-node replica set is fine for development).
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/telco"
	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/sim"
	"github.com/xraph/telco/store"
	"github.com/xraph/telco/tariff"
	"github.com/xraph/telco/traffic"
)

// Collection name constants.
const (
	colTariffs   = "telco_tariffs"
	colSIMs      = "telco_sims"
	colContracts = "telco_contracts"
	colPayments  = "telco_payments"
	colMetrics   = "telco_traffic_metrics"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New wraps a connected client. The database is created lazily by the
// first write.
func New(client *mongo.Client, dbName string) *Store {
	return &Store{
		client: client,
		db:     client.Database(dbName),
	}
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

// Migrate creates the indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: %s indexes: %v", telco.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

func migrationIndexes() map[string][]mongo.IndexModel {
	unique := options.Index().SetUnique(true)
	return map[string][]mongo.IndexModel{
		colTariffs: {
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "kind", Value: 1}}},
		},
		colSIMs: {
			{Keys: bson.D{{Key: "iccid", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "imsi", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "msisdn", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colContracts: {
			{Keys: bson.D{{Key: "number", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "customer_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_billing_date", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "balance", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "contract_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{
				Keys: bson.D{{Key: "transaction_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(
					bson.D{{Key: "transaction_id", Value: bson.D{{Key: "$gt", Value: ""}}}},
				),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "contract_id", Value: 1}, {Key: "billing_period", Value: 1}}},
		},
		colMetrics: {
			{Keys: bson.D{{Key: "recorded_at", Value: 1}}},
			{Keys: bson.D{{Key: "source", Value: 1}, {Key: "recorded_at", Value: 1}}},
		},
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// Tariff Store implementation

func (s *Store) CreateTariff(ctx context.Context, t *tariff.Tariff) error {
	_, err := s.db.Collection(colTariffs).InsertOne(ctx, toTariffModel(t))
	return mapWriteErr(err)
}

func (s *Store) GetTariff(ctx context.Context, tariffID id.TariffID) (*tariff.Tariff, error) {
	var m tariffModel
	err := s.db.Collection(colTariffs).
		FindOne(ctx, bson.M{"_id": tariffID.String()}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, telco.ErrTariffNotFound
		}
		return nil, err
	}
	return fromTariffModel(&m)
}

func (s *Store) ListTariffs(ctx context.Context, opts tariff.ListOpts) ([]*tariff.Tariff, error) {
	filter := bson.M{}
	if opts.ActiveOnly {
		filter["is_active"] = true
	}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "_id", Value: 1}})
	applyPagination(findOpts, opts.Limit, opts.Offset)

	cursor, err := s.db.Collection(colTariffs).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	var models []tariffModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, err
	}

	result := make([]*tariff.Tariff, len(models))
	for i := range models {
		t, err := fromTariffModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

func (s *Store) UpdateTariff(ctx context.Context, t *tariff.Tariff) error {
	res, err := s.db.Collection(colTariffs).
		ReplaceOne(ctx, bson.M{"_id": t.ID.String()}, toTariffModel(t))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return telco.ErrTariffNotFound
	}
	return nil
}

func (s *Store) DeleteTariff(ctx context.Context, tariffID id.TariffID) error {
	_, err := s.db.Collection(colTariffs).
		DeleteOne(ctx, bson.M{"_id": tariffID.String()})
	return err
}

// SIM Store implementation

func (s *Store) CreateSIM(ctx context.Context, card *sim.SIM) error {
	_, err := s.db.Collection(colSIMs).InsertOne(ctx, toSIMModel(card))
	return mapWriteErr(err)
}

func (s *Store) GetSIM(ctx context.Context, simID id.SIMID) (*sim.SIM, error) {
	return getSIM(ctx, s.db, bson.M{"_id": simID.String()})
}

func (s *Store) GetSIMByICCID(ctx context.Context, iccid string) (*sim.SIM, error) {
	return getSIM(ctx, s.db, bson.M{"iccid": iccid})
}

func (s *Store) GetSIMByMSISDN(ctx context.Context, msisdn string) (*sim.SIM, error) {
	return getSIM(ctx, s.db, bson.M{"msisdn": msisdn})
}

func getSIM(ctx context.Context, db *mongo.Database, filter bson.M) (*sim.SIM, error) {
	var m simModel
	err := db.Collection(colSIMs).FindOne(ctx, filter).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, telco.ErrSIMNotFound
		}
		return nil, err
	}
	return fromSIMModel(&m)
}

func (s *Store) ListSIMs(ctx context.Context, opts sim.ListOpts) ([]*sim.SIM, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "iccid", Value: 1}})
	applyPagination(findOpts, opts.Limit, opts.Offset)

	cursor, err := s.db.Collection(colSIMs).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	var models []simModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, err
	}

	result := make([]*sim.SIM, len(models))
	for i := range models {
		card, err := fromSIMModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = card
	}
	return result, nil
}

// UpdateSIM replaces the card document with an optimistic version
// check: the stored version must still match the one the caller read.
func (s *Store) UpdateSIM(ctx context.Context, card *sim.SIM) error {
	return updateSIM(ctx, s.db, card)
}

func updateSIM(ctx context.Context, db *mongo.Database, card *sim.SIM) error {
	m := toSIMModel(card)
	m.Version = card.Version + 1

	res, err := db.Collection(colSIMs).ReplaceOne(ctx,
		bson.M{"_id": card.ID.String(), "version": card.Version}, m)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := db.Collection(colSIMs).
			CountDocuments(ctx, bson.M{"_id": card.ID.String()})
		if err != nil {
			return err
		}
		if n == 0 {
			return telco.ErrSIMNotFound
		}
		return telco.ErrVersionConflict
	}
	return nil
}

// Contract Store implementation

func (s *Store) CreateContract(ctx context.Context, c *contract.Contract) error {
	_, err := s.db.Collection(colContracts).InsertOne(ctx, toContractModel(c))
	return mapWriteErr(err)
}

func (s *Store) GetContract(ctx context.Context, contractID id.ContractID) (*contract.Contract, error) {
	return getContract(ctx, s.db, bson.M{"_id": contractID.String()})
}

func (s *Store) GetContractByNumber(ctx context.Context, number string) (*contract.Contract, error) {
	return getContract(ctx, s.db, bson.M{"number": number})
}

func getContract(ctx context.Context, db *mongo.Database, filter bson.M) (*contract.Contract, error) {
	var m contractModel
	err := db.Collection(colContracts).FindOne(ctx, filter).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, telco.ErrContractNotFound
		}
		return nil, err
	}
	return fromContractModel(&m)
}

func (s *Store) ListContracts(ctx context.Context, opts contract.ListOpts) ([]*contract.Contract, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if !opts.CustomerID.IsNil() {
		filter["customer_id"] = opts.CustomerID.String()
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "number", Value: 1}})
	applyPagination(findOpts, opts.Limit, opts.Offset)

	return s.queryContracts(ctx, filter, findOpts)
}

func (s *Store) ListContractsBillingDue(ctx context.Context, asOf time.Time) ([]*contract.Contract, error) {
	filter := bson.M{
		"status":            string(contract.StatusActive),
		"next_billing_date": bson.M{"$ne": nil, "$lte": asOf},
	}
	return s.queryContracts(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "number", Value: 1}}))
}

func (s *Store) ListContractsNegativeBalance(ctx context.Context) ([]*contract.Contract, error) {
	filter := bson.M{
		"status":  string(contract.StatusActive),
		"balance": bson.M{"$lt": 0},
	}
	return s.queryContracts(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "number", Value: 1}}))
}

func (s *Store) queryContracts(ctx context.Context, filter bson.M, findOpts *options.FindOptionsBuilder) ([]*contract.Contract, error) {
	cursor, err := s.db.Collection(colContracts).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	var models []contractModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, err
	}

	result := make([]*contract.Contract, len(models))
	for i := range models {
		c, err := fromContractModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) ContractStats(ctx context.Context) (*contract.Stats, error) {
	cursor, err := s.db.Collection(colContracts).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":      "$status",
			"count":    bson.M{"$sum": 1},
			"balance":  bson.M{"$sum": "$balance"},
			"currency": bson.M{"$first": "$currency"},
		}}},
	})
	if err != nil {
		return nil, err
	}

	var groups []struct {
		Status   string `bson:"_id"`
		Count    int64  `bson:"count"`
		Balance  int64  `bson:"balance"`
		Currency string `bson:"currency"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err
	}

	stats := &contract.Stats{ByStatus: make(map[contract.Status]int64)}
	var activeCount, activeBalance int64
	for _, g := range groups {
		stats.Total += g.Count
		stats.ByStatus[contract.Status(g.Status)] = g.Count
		stats.TotalBalance += g.Balance
		if stats.Currency == "" {
			stats.Currency = g.Currency
		}
		if contract.Status(g.Status) == contract.StatusActive {
			activeCount = g.Count
			activeBalance = g.Balance
		}
	}
	if activeCount > 0 {
		stats.AvgBalance = activeBalance / activeCount
	}
	return stats, nil
}

// Payment Store implementation

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Entry, error) {
	return getPayment(ctx, s.db, bson.M{"_id": paymentID.String()})
}

func (s *Store) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*payment.Entry, error) {
	if transactionID == "" {
		return nil, telco.ErrPaymentNotFound
	}
	return getPayment(ctx, s.db, bson.M{"transaction_id": transactionID})
}

func getPayment(ctx context.Context, db *mongo.Database, filter bson.M) (*payment.Entry, error) {
	var m paymentModel
	err := db.Collection(colPayments).FindOne(ctx, filter).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, telco.ErrPaymentNotFound
		}
		return nil, err
	}
	return fromPaymentModel(&m)
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Entry, error) {
	filter := bson.M{}
	if !opts.ContractID.IsNil() {
		filter["contract_id"] = opts.ContractID.String()
	}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	applyPagination(findOpts, opts.Limit, opts.Offset)

	return queryPayments(ctx, s.db, filter, findOpts)
}

func (s *Store) ListUnsettledPayments(ctx context.Context, before time.Time) ([]*payment.Entry, error) {
	filter := bson.M{
		"status": bson.M{"$in": []string{
			string(payment.StatusPending), string(payment.StatusProcessing),
		}},
		"created_at": bson.M{"$lt": before},
	}
	return queryPayments(ctx, s.db, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func queryPayments(ctx context.Context, db *mongo.Database, filter bson.M, findOpts *options.FindOptionsBuilder) ([]*payment.Entry, error) {
	cursor, err := db.Collection(colPayments).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	var models []paymentModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, err
	}

	result := make([]*payment.Entry, len(models))
	for i := range models {
		e, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// Traffic metric Store implementation

func (s *Store) InsertMetrics(ctx context.Context, metrics []*traffic.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	docs := make([]any, len(metrics))
	for i, m := range metrics {
		docs[i] = toMetricModel(m)
	}
	_, err := s.db.Collection(colMetrics).InsertMany(ctx, docs)
	return err
}

func (s *Store) ListMetrics(ctx context.Context, opts traffic.ListOpts) ([]*traffic.Metric, error) {
	filter := bson.M{}
	if opts.Source != "" {
		filter["source"] = string(opts.Source)
	}
	recorded := bson.M{}
	if !opts.Since.IsZero() {
		recorded["$gte"] = opts.Since
	}
	if !opts.Until.IsZero() {
		recorded["$lt"] = opts.Until
	}
	if len(recorded) > 0 {
		filter["recorded_at"] = recorded
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "recorded_at", Value: 1}})
	applyPagination(findOpts, opts.Limit, opts.Offset)

	cursor, err := s.db.Collection(colMetrics).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	var models []metricModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, err
	}

	result := make([]*traffic.Metric, len(models))
	for i := range models {
		m, err := fromMetricModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = m
	}
	return result, nil
}

func (s *Store) PurgeMetrics(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Collection(colMetrics).
		DeleteMany(ctx, bson.M{"recorded_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Helpers

func applyPagination(findOpts *options.FindOptionsBuilder, limit, offset int) {
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	if offset > 0 {
		findOpts.SetSkip(int64(offset))
	}
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return telco.ErrAlreadyExists
	}
	return err
}
