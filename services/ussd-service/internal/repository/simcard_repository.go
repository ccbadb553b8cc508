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

	"github.com/grigta/simgate/pkg/crypto"
	"github.com/grigta/simgate/pkg/database"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/normalize"
)

type SimCardFilter struct {
	DeviceID *primitive.ObjectID
	Operator string
}

// ReserveRequest describes one atomic pick from the SIM pool.
type ReserveRequest struct {
	Operator      string
	Operation     models.OperationType
	TransactionID primitive.ObjectID
	Now           time.Time
	Lease         time.Duration
	DailyCap      int

	// RequirePIN skips cards without a PIN, for the formats that embed it.
	RequirePIN bool
}

type SimCardRepository interface {
	Create(ctx context.Context, sim *models.SimCard) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.SimCard, error)
	List(ctx context.Context, filter SimCardFilter) ([]models.SimCard, error)
	Update(ctx context.Context, sim *models.SimCard) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	SetFlags(ctx context.Context, id primitive.ObjectID, activation, topup bool) (*models.SimCard, error)
	DisableByDevice(ctx context.Context, deviceID primitive.ObjectID) (int64, error)
	Reserve(ctx context.Context, req ReserveRequest) (*models.SimCard, error)
	Release(ctx context.Context, simID, txID primitive.ObjectID) error
	Unreserve(ctx context.Context, simID, txID primitive.ObjectID, op models.OperationType) error
	ResetDailyCounters(ctx context.Context, day string) (int64, error)
}

type MongoSimCardRepository struct {
	db        *database.MongoDB
	encryptor *crypto.Encryptor
	logger    *logrus.Logger
}

// NewSimCardRepository stores PIN, PIN2 and PUK encrypted when encryptor is non-nil.
func NewSimCardRepository(db *database.MongoDB, encryptor *crypto.Encryptor, logger *logrus.Logger) *MongoSimCardRepository {
	return &MongoSimCardRepository{db: db, encryptor: encryptor, logger: logger}
}

func (r *MongoSimCardRepository) Create(ctx context.Context, sim *models.SimCard) error {
	stored, err := r.sealed(sim)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	result, err := r.db.InsertOne(ctx, CollectionSimCards, stored)
	if err != nil {
		return fmt.Errorf("failed to insert sim card: %w", err)
	}

	sim.ID = result.InsertedID.(primitive.ObjectID)
	sim.OperatorKey = stored.OperatorKey
	sim.CreatedAt = now
	sim.UpdatedAt = now
	return nil
}

func (r *MongoSimCardRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.SimCard, error) {
	var sim models.SimCard
	if err := r.db.FindOne(ctx, CollectionSimCards, bson.M{"_id": id}, &sim); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find sim card: %w", err)
	}
	return r.opened(&sim)
}

func (r *MongoSimCardRepository) List(ctx context.Context, filter SimCardFilter) ([]models.SimCard, error) {
	query := bson.M{}
	if filter.DeviceID != nil {
		query["owner_device_id"] = *filter.DeviceID
	}
	if filter.Operator != "" {
		query["operator_key"] = normalize.OperatorKey(filter.Operator)
	}

	sims := []models.SimCard{}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if err := r.db.FindAll(ctx, CollectionSimCards, query, &sims, opts); err != nil {
		return nil, fmt.Errorf("failed to list sim cards: %w", err)
	}

	for i := range sims {
		if _, err := r.opened(&sims[i]); err != nil {
			return nil, err
		}
	}
	return sims, nil
}

// Update rewrites the admin-editable fields. Counters and reservations are left alone.
func (r *MongoSimCardRepository) Update(ctx context.Context, sim *models.SimCard) error {
	stored, err := r.sealed(sim)
	if err != nil {
		return err
	}

	result, err := r.db.UpdateOne(ctx, CollectionSimCards, bson.M{"_id": sim.ID}, bson.M{"$set": bson.M{
		"operator":           stored.Operator,
		"operator_key":       stored.OperatorKey,
		"number":             stored.Number,
		"connected":          stored.Connected,
		"activation_enabled": stored.ActivationEnabled,
		"topup_enabled":      stored.TopupEnabled,
		"balance":            stored.Balance,
		"owner_device_id":    stored.DeviceID,
		"last_connect":       stored.LastConnect,
		"pin":                stored.Pin,
		"pin2":               stored.Pin2,
		"puk":                stored.Puk,
		"charged":            stored.Charged,
		"updated_at":         time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("failed to update sim card: %w", err)
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *MongoSimCardRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.db.DeleteOne(ctx, CollectionSimCards, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete sim card: %w", err)
	}
	if result.DeletedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *MongoSimCardRepository) SetFlags(ctx context.Context, id primitive.ObjectID, activation, topup bool) (*models.SimCard, error) {
	var sim models.SimCard
	err := r.db.FindOneAndUpdate(ctx, CollectionSimCards, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"activation_enabled": activation,
		"topup_enabled":      topup,
		"updated_at":         time.Now().UTC(),
	}}, &sim)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to set sim card flags: %w", err)
	}
	return r.opened(&sim)
}

// DisableByDevice clears both capability flags on every SIM card the device owns.
func (r *MongoSimCardRepository) DisableByDevice(ctx context.Context, deviceID primitive.ObjectID) (int64, error) {
	result, err := r.db.UpdateMany(ctx, CollectionSimCards,
		bson.M{"owner_device_id": deviceID},
		bson.M{"$set": bson.M{
			"activation_enabled": false,
			"topup_enabled":      false,
			"updated_at":         time.Now().UTC(),
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to disable device sim cards: %w", err)
	}
	return result.MatchedCount, nil
}

// Reserve picks the first eligible card by _id and leases it to req.TransactionID in a single
// write, bumping the daily counter for the operation. It returns nil, nil when no card qualifies.
func (r *MongoSimCardRepository) Reserve(ctx context.Context, req ReserveRequest) (*models.SimCard, error) {
	flag, counter := poolFields(req.Operation)

	filter := bson.M{
		"operator_key": normalize.OperatorKey(req.Operator),
		flag:           true,
		"$or": bson.A{
			bson.M{"reserved_until": bson.M{"$exists": false}},
			bson.M{"reserved_until": nil},
			bson.M{"reserved_until": bson.M{"$lte": req.Now}},
		},
	}
	if req.DailyCap > 0 {
		filter[counter] = bson.M{"$lt": req.DailyCap}
	}
	if req.RequirePIN {
		filter["pin"] = bson.M{"$nin": bson.A{"", nil}}
	}

	until := req.Now.Add(req.Lease)
	update := bson.M{
		"$set": bson.M{
			"reserved_by":    req.TransactionID,
			"reserved_until": until,
			"updated_at":     req.Now,
		},
		"$inc": bson.M{counter: 1},
	}

	var sim models.SimCard
	err := r.db.FindOneAndUpdate(ctx, CollectionSimCards, filter, update, &sim,
		options.FindOneAndUpdate().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to reserve sim card: %w", err)
	}
	return r.opened(&sim)
}

// Release ends the lease if txID still holds it.
func (r *MongoSimCardRepository) Release(ctx context.Context, simID, txID primitive.ObjectID) error {
	_, err := r.db.UpdateOne(ctx, CollectionSimCards,
		bson.M{"_id": simID, "reserved_by": txID},
		bson.M{
			"$unset": bson.M{"reserved_by": "", "reserved_until": ""},
			"$set":   bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to release sim card: %w", err)
	}
	return nil
}

// Unreserve undoes a Reserve whose transaction was never recorded: the lease ends and the daily
// counter goes back down. A counter already reset to zero is left alone.
func (r *MongoSimCardRepository) Unreserve(ctx context.Context, simID, txID primitive.ObjectID, op models.OperationType) error {
	_, counter := poolFields(op)
	result, err := r.db.UpdateOne(ctx, CollectionSimCards,
		bson.M{"_id": simID, "reserved_by": txID, counter: bson.M{"$gt": 0}},
		bson.M{
			"$unset": bson.M{"reserved_by": "", "reserved_until": ""},
			"$inc":   bson.M{counter: -1},
			"$set":   bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to unreserve sim card: %w", err)
	}
	if result.MatchedCount == 0 {
		return r.Release(ctx, simID, txID)
	}
	return nil
}

func poolFields(op models.OperationType) (flag, counter string) {
	if op == models.OperationTopup {
		return "topup_enabled", "today_topup_count"
	}
	return "activation_enabled", "today_activation_count"
}

// ResetDailyCounters zeroes the counters of every card not yet stamped with day.
func (r *MongoSimCardRepository) ResetDailyCounters(ctx context.Context, day string) (int64, error) {
	result, err := r.db.UpdateMany(ctx, CollectionSimCards,
		bson.M{"counter_day": bson.M{"$ne": day}},
		bson.M{"$set": bson.M{
			"today_activation_count": 0,
			"today_topup_count":      0,
			"counter_day":            day,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily counters: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *MongoSimCardRepository) sealed(sim *models.SimCard) (*models.SimCard, error) {
	stored := *sim
	stored.OperatorKey = normalize.OperatorKey(sim.Operator)
	if r.encryptor == nil {
		return &stored, nil
	}

	for _, secret := range []*string{&stored.Pin, &stored.Pin2, &stored.Puk} {
		if *secret == "" {
			continue
		}
		enc, err := r.encryptor.Encrypt(*secret)
		if err != nil {
			r.logger.WithError(err).Error("Failed to encrypt sim card secret")
			return nil, err
		}
		*secret = enc
	}
	return &stored, nil
}

func (r *MongoSimCardRepository) opened(sim *models.SimCard) (*models.SimCard, error) {
	if r.encryptor == nil {
		return sim, nil
	}

	for _, secret := range []*string{&sim.Pin, &sim.Pin2, &sim.Puk} {
		if *secret == "" {
			continue
		}
		dec, err := r.encryptor.Decrypt(*secret)
		if err != nil {
			r.logger.WithError(err).WithField("sim_card_id", sim.ID.Hex()).Error("Failed to decrypt sim card secret")
			return nil, err
		}
		*secret = dec
	}
	return sim, nil
}
