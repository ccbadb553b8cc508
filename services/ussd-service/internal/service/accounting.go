package service

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
)

// Accounting moves money between a user balance and the transactions it paid for.
type Accounting struct {
	users        repository.UserRepository
	transactions repository.TransactionRepository
	logger       *logrus.Logger
}

func NewAccounting(users repository.UserRepository, transactions repository.TransactionRepository, logger *logrus.Logger) *Accounting {
	return &Accounting{users: users, transactions: transactions, logger: logger}
}

// Debit takes amount from the user only if the balance covers it. A zero amount is free.
func (a *Accounting) Debit(ctx context.Context, user *models.User, amount float64) (*models.User, error) {
	if amount <= 0 {
		return user, nil
	}

	updated, err := a.users.Debit(ctx, user.ID, amount)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		balance := user.Balance
		if current, err := a.users.FindByID(ctx, user.ID); err == nil && current != nil {
			balance = current.Balance
		}
		return nil, models.NewInsufficientBalanceError(balance, amount)
	}

	a.logger.WithFields(logrus.Fields{
		"user_id": user.ID.Hex(),
		"amount":  amount,
		"balance": updated.Balance,
	}).Debug("Balance debited")
	return updated, nil
}

func (a *Accounting) Credit(ctx context.Context, userID primitive.ObjectID, amount float64) (*models.User, error) {
	updated, err := a.users.Credit(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, models.NewNotFoundError("user")
	}
	return updated, nil
}

// Refund returns tx.Cost to its owner when tx ended FAILED or REFUSED. The refunded flag is
// claimed before crediting, so concurrent callers refund at most once. It reports whether this
// call did the refund.
func (a *Accounting) Refund(ctx context.Context, tx *models.Transaction) (bool, error) {
	if !tx.Status.IsFailure() || tx.Cost <= 0 || tx.Refunded {
		return false, nil
	}

	claimed, err := a.transactions.MarkRefunded(ctx, tx.ID)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	log := a.logger.WithFields(logrus.Fields{
		"transaction_id": tx.ID.Hex(),
		"user_id":        tx.UserID.Hex(),
		"amount":         tx.Cost,
	})
	if _, err := a.users.Credit(ctx, tx.UserID, tx.Cost); err != nil {
		log.WithError(err).Error("Refund claimed but credit failed")
		return false, err
	}

	tx.Refunded = true
	RecordRefund(string(tx.Type), tx.Cost)
	log.Info("Transaction refunded")
	return true, nil
}
