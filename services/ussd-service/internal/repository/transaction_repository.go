package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/grigta/simgate/pkg/database"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
)

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error)
	List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	Resolve(ctx context.Context, id primitive.ObjectID, res models.Resolution) (*models.Transaction, error)
	RecordUnclassified(ctx context.Context, id primitive.ObjectID, raw string, dateResponse int64) (*models.Transaction, error)
	Transition(ctx context.Context, id primitive.ObjectID, from, to models.TransactionStatus) (bool, error)
	MarkRefunded(ctx context.Context, id primitive.ObjectID) (bool, error)
	CancelPending(ctx context.Context, op models.OperationType, message, batchID string) ([]models.Transaction, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	Aggregate(ctx context.Context, pipeline interface{}, results interface{}) error
}

type MongoTransactionRepository struct {
	db     *database.MongoDB
	logger *logrus.Logger
}

func NewTransactionRepository(db *database.MongoDB, logger *logrus.Logger) *MongoTransactionRepository {
	return &MongoTransactionRepository{db: db, logger: logger}
}

func (r *MongoTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	result, err := r.db.InsertOne(ctx, CollectionTransactions, tx)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	tx.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *MongoTransactionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.FindOne(ctx, CollectionTransactions, bson.M{"_id": id}, &tx); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return &tx, nil
}

func (r *MongoTransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date_operation", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}
	if filter.Skip > 0 {
		opts.SetSkip(filter.Skip)
	}

	transactions := []models.Transaction{}
	if err := r.db.FindAll(ctx, CollectionTransactions, transactionQuery(filter), &transactions, opts); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return transactions, nil
}

func transactionQuery(filter models.TransactionFilter) bson.M {
	query := bson.M{}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.UserID != nil {
		query["user_id"] = *filter.UserID
	}
	if filter.Operator != "" {
		query["operator"] = filter.Operator
	}
	if len(filter.SimCards) > 0 {
		query["sim_card_id"] = bson.M{"$in": filter.SimCards}
	}
	return query
}

// Resolve moves a PENDING transaction to res.Status. It returns nil, nil when the
// transaction is missing or no longer PENDING, so only one resolution can win.
func (r *MongoTransactionRepository) Resolve(ctx context.Context, id primitive.ObjectID, res models.Resolution) (*models.Transaction, error) {
	set := bson.M{
		"status":           res.Status,
		"outcome":          res.Outcome,
		"customer_message": res.CustomerMessage,
		"raw_response":     res.RawResponse,
		"date_response":    res.DateResponse,
		"updated_at":       time.Now().UTC(),
	}
	if res.NewBalance != 0 {
		set["new_balance"] = res.NewBalance
	}

	return r.updatePending(ctx, id, set)
}

// RecordUnclassified stores the executor response but leaves the status PENDING.
func (r *MongoTransactionRepository) RecordUnclassified(ctx context.Context, id primitive.ObjectID, raw string, dateResponse int64) (*models.Transaction, error) {
	return r.updatePending(ctx, id, bson.M{
		"outcome":          models.OutcomeUnclassified,
		"customer_message": raw,
		"raw_response":     raw,
		"date_response":    dateResponse,
		"updated_at":       time.Now().UTC(),
	})
}

func (r *MongoTransactionRepository) updatePending(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.FindOneAndUpdate(ctx, CollectionTransactions,
		bson.M{"_id": id, "status": models.StatusPending},
		bson.M{"$set": set},
		&tx,
	)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve transaction: %w", err)
	}
	return &tx, nil
}

func (r *MongoTransactionRepository) Transition(ctx context.Context, id primitive.ObjectID, from, to models.TransactionStatus) (bool, error) {
	result, err := r.db.UpdateOne(ctx, CollectionTransactions,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition transaction: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

// MarkRefunded flips the refunded flag of a failed transaction. Only the first caller gets true.
func (r *MongoTransactionRepository) MarkRefunded(ctx context.Context, id primitive.ObjectID) (bool, error) {
	result, err := r.db.UpdateOne(ctx, CollectionTransactions,
		bson.M{
			"_id":      id,
			"refunded": bson.M{"$ne": true},
			"status":   bson.M{"$in": []models.TransactionStatus{models.StatusFailed, models.StatusRefused}},
		},
		bson.M{"$set": bson.M{"refunded": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark transaction refunded: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

// CancelPending refuses every PENDING transaction of op in one write and returns the rows it
// changed. Rows are tagged with batchID so the result set is exactly what this call cancelled.
func (r *MongoTransactionRepository) CancelPending(ctx context.Context, op models.OperationType, message, batchID string) ([]models.Transaction, error) {
	now := time.Now().UTC()
	result, err := r.db.UpdateMany(ctx, CollectionTransactions,
		bson.M{"type": op, "status": models.StatusPending},
		bson.M{"$set": bson.M{
			"status":           models.StatusRefused,
			"outcome":          models.OutcomeFailure,
			"customer_message": message,
			"raw_response":     message,
			"date_response":    millis(now),
			"cancel_batch":     batchID,
			"updated_at":       now,
		}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel pending transactions: %w", err)
	}
	if result.ModifiedCount == 0 {
		return []models.Transaction{}, nil
	}

	cancelled := []models.Transaction{}
	if err := r.db.FindAll(ctx, CollectionTransactions, bson.M{"cancel_batch": batchID}, &cancelled); err != nil {
		return nil, fmt.Errorf("failed to load cancelled transactions: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"type":  op,
		"count": len(cancelled),
		"batch": batchID,
	}).Info("Pending transactions cancelled")

	return cancelled, nil
}

func (r *MongoTransactionRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.db.DeleteOne(ctx, CollectionTransactions, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if result.DeletedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *MongoTransactionRepository) Aggregate(ctx context.Context, pipeline interface{}, results interface{}) error {
	return r.db.Aggregate(ctx, CollectionTransactions, pipeline, results)
}
