package repository

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/grigta/simgate/pkg/database"
)

const (
	CollectionTransactions = "transactions"
	CollectionSimCards     = "sim_cards"
	CollectionDevices      = "devices"
	CollectionUsers        = "users"
	CollectionTemplates    = "message_templates"
	CollectionConfig       = "config"
)

// EnsureIndexes creates the indexes every query path relies on.
func EnsureIndexes(ctx context.Context, db *database.MongoDB, logger *logrus.Logger) error {
	indexes := map[string][]mongo.IndexModel{
		CollectionTransactions: {
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "date_operation", Value: -1}}},
			{Keys: bson.D{{Key: "sim_card_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "cancel_batch", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		CollectionSimCards: {
			{Keys: bson.D{{Key: "operator_key", Value: 1}, {Key: "activation_enabled", Value: 1}, {Key: "reserved_until", Value: 1}}},
			{Keys: bson.D{{Key: "operator_key", Value: 1}, {Key: "topup_enabled", Value: 1}, {Key: "reserved_until", Value: 1}}},
			{Keys: bson.D{{Key: "owner_device_id", Value: 1}}},
		},
		CollectionUsers: {
			{Keys: bson.D{{Key: "phone", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CollectionTemplates: {
			{Keys: bson.D{{Key: "server_message", Value: 1}, {Key: "operator", Value: 1}, {Key: "operation", Value: 1}}},
		},
		CollectionConfig: {
			{Keys: bson.D{{Key: "service", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}

	for collection, models := range indexes {
		if err := db.CreateIndexes(ctx, collection, models); err != nil {
			return err
		}
		logger.WithField("collection", collection).Debug("Indexes ensured")
	}

	for _, legacy := range []string{CollectionTransactions, CollectionSimCards, CollectionDevices, CollectionUsers, CollectionTemplates, CollectionConfig} {
		if err := db.CreateIndexes(ctx, legacy, []mongo.IndexModel{{
			Keys:    bson.D{{Key: "legacy_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		}}); err != nil {
			return err
		}
	}
	return nil
}

func millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
