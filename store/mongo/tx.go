package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/telco"
	"github.com/xraph/telco/contract"
	"github.com/xraph/telco/id"
	"github.com/xraph/telco/payment"
	"github.com/xraph/telco/sim"
	"github.com/xraph/telco/store"
)

// commitRetries bounds the automatic re-run of a contract transaction
// after a version conflict.
const commitRetries = 3

// InContractTx runs fn inside a multi-document transaction. Write
// conflicts between two transactions touching the same contract abort
// one of them as transient, and WithTransaction re-runs the callback
// with fresh reads. A version CAS miss is not transient in that sense,
// so it gets its own bounded re-run, after which the stale writer
// surfaces the precondition it then hits (a raced-over card reads as
// bound) instead of the conflict.
func (s *Store) InContractTx(ctx context.Context, contractID id.ContractID, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt < commitRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = s.runContractTx(ctx, contractID, fn)
		if !errors.Is(err, telco.ErrVersionConflict) {
			return err
		}
	}
	return err
}

func (s *Store) runContractTx(ctx context.Context, contractID id.ContractID, fn func(tx store.Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		t := &mongoTx{db: s.db, contractID: contractID}
		return nil, fn(t)
	})
	return err
}

type mongoTx struct {
	db         *mongo.Database
	contractID id.ContractID
}

var _ store.Tx = (*mongoTx)(nil)

func (t *mongoTx) Contract(ctx context.Context) (*contract.Contract, error) {
	return getContract(ctx, t.db, bson.M{"_id": t.contractID.String()})
}

func (t *mongoTx) SaveContract(ctx context.Context, c *contract.Contract) error {
	if c.ID != t.contractID {
		return telco.ErrTransactionFailed
	}
	m := toContractModel(c)
	m.Version = c.Version + 1

	res, err := t.db.Collection(colContracts).ReplaceOne(ctx,
		bson.M{"_id": c.ID.String(), "version": c.Version}, m)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := t.db.Collection(colContracts).
			CountDocuments(ctx, bson.M{"_id": c.ID.String()})
		if err != nil {
			return err
		}
		if n == 0 {
			return telco.ErrContractNotFound
		}
		return telco.ErrVersionConflict
	}
	return nil
}

func (t *mongoTx) SIM(ctx context.Context, simID id.SIMID) (*sim.SIM, error) {
	return getSIM(ctx, t.db, bson.M{"_id": simID.String()})
}

func (t *mongoTx) SaveSIM(ctx context.Context, card *sim.SIM) error {
	return updateSIM(ctx, t.db, card)
}

func (t *mongoTx) Payment(ctx context.Context, paymentID id.PaymentID) (*payment.Entry, error) {
	return getPayment(ctx, t.db, bson.M{"_id": paymentID.String()})
}

func (t *mongoTx) AppendPayment(ctx context.Context, e *payment.Entry) error {
	_, err := t.db.Collection(colPayments).InsertOne(ctx, toPaymentModel(e))
	return mapWriteErr(err)
}

func (t *mongoTx) SavePayment(ctx context.Context, e *payment.Entry) error {
	res, err := t.db.Collection(colPayments).
		ReplaceOne(ctx, bson.M{"_id": e.ID.String()}, toPaymentModel(e))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return telco.ErrPaymentNotFound
	}
	return nil
}

func (t *mongoTx) HasChargeForPeriod(ctx context.Context, period string) (bool, error) {
	n, err := t.db.Collection(colPayments).CountDocuments(ctx, bson.M{
		"contract_id":    t.contractID.String(),
		"type":           string(payment.TypeCharge),
		"status":         string(payment.StatusSuccess),
		"billing_period": period,
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
