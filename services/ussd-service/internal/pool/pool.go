package pool

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/normalize"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
	"github.com/grigta/simgate/services/ussd-service/internal/ussd"
)

// FindEligible returns the first card whose operator matches after trim and case folding and
// whose capability flag for op is set, or nil. It is the in-memory form of the rule the Reserve
// filter applies in the store; the two are checked against each other in tests.
func FindEligible(cards []models.SimCard, operator string, op models.OperationType) *models.SimCard {
	key := normalize.OperatorKey(operator)
	for i := range cards {
		if normalize.OperatorKey(cards[i].Operator) == key && cards[i].Enabled(op) {
			return &cards[i]
		}
	}
	return nil
}

type Caps struct {
	Activation int
	Topup      int
}

func (c Caps) For(op models.OperationType) int {
	if op == models.OperationTopup {
		return c.Topup
	}
	return c.Activation
}

type Pool struct {
	repo   repository.SimCardRepository
	lease  time.Duration
	caps   Caps
	now    func() time.Time
	logger *logrus.Logger
}

type Option func(*Pool)

func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

func NewPool(repo repository.SimCardRepository, lease time.Duration, caps Caps, logger *logrus.Logger, opts ...Option) *Pool {
	p := &Pool{
		repo:   repo,
		lease:  lease,
		caps:   caps,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reserve leases one eligible card to txID. Selection and lease are a single store write, so two
// concurrent callers never receive the same card.
func (p *Pool) Reserve(ctx context.Context, operator string, op models.OperationType, txID primitive.ObjectID) (*models.SimCard, error) {
	sim, err := p.repo.Reserve(ctx, repository.ReserveRequest{
		Operator:      operator,
		Operation:     op,
		TransactionID: txID,
		Now:           p.now().UTC(),
		Lease:         p.lease,
		DailyCap:      p.caps.For(op),
		RequirePIN:    ussd.NeedsPIN(operator, op),
	})
	if err != nil {
		return nil, err
	}
	if sim == nil {
		p.logger.WithFields(logrus.Fields{
			"operator":  operator,
			"operation": op,
		}).Warn("No eligible SIM card")
		return nil, models.NewResourceUnavailableError(operator)
	}

	p.logger.WithFields(logrus.Fields{
		"sim_card_id":    sim.ID.Hex(),
		"transaction_id": txID.Hex(),
		"operation":      op,
	}).Debug("SIM card reserved")
	return sim, nil
}

func (p *Pool) Release(ctx context.Context, simID, txID primitive.ObjectID) error {
	if err := p.repo.Release(ctx, simID, txID); err != nil {
		p.logger.WithError(err).WithField("sim_card_id", simID.Hex()).Error("Failed to release SIM card")
		return err
	}
	return nil
}

// Unreserve hands back a card whose transaction was never recorded, including its daily count.
func (p *Pool) Unreserve(ctx context.Context, simID, txID primitive.ObjectID, op models.OperationType) error {
	if err := p.repo.Unreserve(ctx, simID, txID, op); err != nil {
		p.logger.WithError(err).WithField("sim_card_id", simID.Hex()).Error("Failed to unreserve SIM card")
		return err
	}
	return nil
}
