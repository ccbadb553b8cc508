package pool

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
	"github.com/grigta/simgate/services/ussd-service/internal/repository/mocks"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestFindEligible(t *testing.T) {
	cards := []models.SimCard{
		{Number: "a", Operator: "inwi", ActivationEnabled: false, TopupEnabled: true},
		{Number: "b", Operator: " Maroc Telecom ", ActivationEnabled: true},
		{Number: "c", Operator: "INWI", ActivationEnabled: true},
		{Number: "d", Operator: "inwi", ActivationEnabled: true, TopupEnabled: true},
	}

	tests := []struct {
		name     string
		operator string
		op       models.OperationType
		want     string
	}{
		{"first activation-enabled inwi", "inwi", models.OperationActivation, "c"},
		{"first topup-enabled inwi", "Inwi ", models.OperationTopup, "a"},
		{"operator folded on both sides", "maroc telecom", models.OperationActivation, "b"},
		{"no topup for maroc telecom", "Maroc Telecom", models.OperationTopup, ""},
		{"unknown operator", "Orange MA", models.OperationActivation, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindEligible(cards, tt.operator, tt.op)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Number)
		})
	}
}

// Whatever FindEligible returns is eligible, and nothing earlier in the slice was.
func TestFindEligible_Invariant(t *testing.T) {
	operators := []string{"inwi", "INWI", "Orange MA", "orange ma ", "Maroc Telecom"}
	var cards []models.SimCard
	for i := 0; i < 40; i++ {
		cards = append(cards, models.SimCard{
			Number:            string(rune('A' + i)),
			Operator:          operators[i%len(operators)],
			ActivationEnabled: i%3 == 0,
			TopupEnabled:      i%4 == 1,
		})
	}

	for _, operator := range []string{"inwi", "Orange MA", "Maroc Telecom"} {
		for _, op := range []models.OperationType{models.OperationActivation, models.OperationTopup} {
			got := FindEligible(cards, operator, op)
			eligible := func(c models.SimCard) bool {
				return FindEligible([]models.SimCard{c}, operator, op) != nil
			}

			idx := -1
			for i := range cards {
				if eligible(cards[i]) {
					idx = i
					break
				}
			}
			if idx < 0 {
				assert.Nil(t, got, "%s/%s", operator, op)
				continue
			}
			require.NotNil(t, got, "%s/%s", operator, op)
			assert.Equal(t, cards[idx].Number, got.Number)
			assert.True(t, got.Enabled(op))
		}
	}
}

func TestPool_Reserve(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	txID := primitive.NewObjectID()

	t.Run("passes lease and cap for the operation", func(t *testing.T) {
		repo := new(mocks.MockSimCardRepository)
		sim := &models.SimCard{ID: primitive.NewObjectID(), Operator: "inwi", TopupEnabled: true}
		repo.On("Reserve", ctx, repository.ReserveRequest{
			Operator:      "inwi",
			Operation:     models.OperationTopup,
			TransactionID: txID,
			Now:           now,
			Lease:         2 * time.Minute,
			DailyCap:      7,
		}).Return(sim, nil)

		p := NewPool(repo, 2*time.Minute, Caps{Activation: 3, Topup: 7}, quietLogger(), WithClock(func() time.Time { return now }))
		got, err := p.Reserve(ctx, "inwi", models.OperationTopup, txID)

		require.NoError(t, err)
		assert.Equal(t, sim.ID, got.ID)
		repo.AssertExpectations(t)
	})

	t.Run("orange top-up only takes cards with a PIN", func(t *testing.T) {
		repo := new(mocks.MockSimCardRepository)
		sim := &models.SimCard{ID: primitive.NewObjectID(), Operator: "Orange MA", TopupEnabled: true, Pin: "4321"}
		repo.On("Reserve", ctx, mock.MatchedBy(func(req repository.ReserveRequest) bool {
			return req.RequirePIN && req.Operation == models.OperationTopup
		})).Return(sim, nil).Once()
		repo.On("Reserve", ctx, mock.MatchedBy(func(req repository.ReserveRequest) bool {
			return !req.RequirePIN && req.Operation == models.OperationActivation
		})).Return(sim, nil).Once()

		p := NewPool(repo, time.Minute, Caps{}, quietLogger())
		_, err := p.Reserve(ctx, models.OperatorOrange, models.OperationTopup, txID)
		require.NoError(t, err)
		_, err = p.Reserve(ctx, models.OperatorOrange, models.OperationActivation, txID)
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("nothing eligible", func(t *testing.T) {
		repo := new(mocks.MockSimCardRepository)
		repo.On("Reserve", ctx, mock.Anything).Return(nil, nil)

		p := NewPool(repo, time.Minute, Caps{}, quietLogger())
		got, err := p.Reserve(ctx, "Orange MA", models.OperationActivation, txID)

		assert.Nil(t, got)
		assert.True(t, models.IsKind(err, models.KindResourceUnavailable))
		assert.EqualError(t, err, "no resource available for operator Orange MA")
	})

	t.Run("store error is passed through", func(t *testing.T) {
		repo := new(mocks.MockSimCardRepository)
		repo.On("Reserve", ctx, mock.Anything).Return(nil, errors.New("connection reset"))

		p := NewPool(repo, time.Minute, Caps{}, quietLogger())
		_, err := p.Reserve(ctx, "inwi", models.OperationActivation, txID)

		require.Error(t, err)
		assert.Equal(t, models.ErrorKind(""), models.KindOf(err))
	})
}

func TestPool_Release(t *testing.T) {
	ctx := context.Background()
	simID, txID := primitive.NewObjectID(), primitive.NewObjectID()

	repo := new(mocks.MockSimCardRepository)
	repo.On("Release", ctx, simID, txID).Return(nil).Once()
	p := NewPool(repo, time.Minute, Caps{}, quietLogger())

	require.NoError(t, p.Release(ctx, simID, txID))
	repo.AssertExpectations(t)
}

func TestPool_Unreserve(t *testing.T) {
	ctx := context.Background()
	simID, txID := primitive.NewObjectID(), primitive.NewObjectID()

	repo := new(mocks.MockSimCardRepository)
	repo.On("Unreserve", ctx, simID, txID, models.OperationTopup).Return(nil).Once()
	repo.On("Unreserve", ctx, simID, txID, models.OperationActivation).Return(errors.New("connection reset")).Once()
	p := NewPool(repo, time.Minute, Caps{}, quietLogger())

	require.NoError(t, p.Unreserve(ctx, simID, txID, models.OperationTopup))
	require.Error(t, p.Unreserve(ctx, simID, txID, models.OperationActivation))
	repo.AssertExpectations(t)
}

func TestCounterResetWorker_Check(t *testing.T) {
	ctx := context.Background()
	repo := new(mocks.MockSimCardRepository)
	repo.On("ResetDailyCounters", ctx, "2026-03-01").Return(int64(4), nil).Once()
	repo.On("ResetDailyCounters", ctx, "2026-03-02").Return(int64(4), nil).Once()

	current := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	w := NewCounterResetWorker(repo, time.Minute, quietLogger())
	w.now = func() time.Time { return current }

	assert.Equal(t, int64(4), w.Check(ctx))
	assert.Equal(t, int64(0), w.Check(ctx), "same day is a no-op")

	current = current.Add(2 * time.Minute)
	assert.Equal(t, int64(4), w.Check(ctx))
	repo.AssertExpectations(t)
}

func TestCounterResetWorker_RetriesAfterError(t *testing.T) {
	ctx := context.Background()
	repo := new(mocks.MockSimCardRepository)
	repo.On("ResetDailyCounters", ctx, "2026-03-01").Return(int64(0), errors.New("timeout")).Once()
	repo.On("ResetDailyCounters", ctx, "2026-03-01").Return(int64(2), nil).Once()

	w := NewCounterResetWorker(repo, time.Minute, quietLogger())
	w.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }

	assert.Equal(t, int64(0), w.Check(ctx))
	assert.Equal(t, int64(2), w.Check(ctx))
	repo.AssertExpectations(t)
}

func TestCounterResetWorker_StartStop(t *testing.T) {
	repo := new(mocks.MockSimCardRepository)
	repo.On("ResetDailyCounters", mock.Anything, mock.Anything).Return(int64(0), nil)

	w := NewCounterResetWorker(repo, 10*time.Millisecond, quietLogger())
	w.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	w.Stop()
	w.Stop()

	repo.AssertCalled(t, "ResetDailyCounters", mock.Anything, mock.Anything)
}
