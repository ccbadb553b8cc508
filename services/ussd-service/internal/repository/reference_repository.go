package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/grigta/simgate/pkg/database"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
)

type TemplateRepository interface {
	Create(ctx context.Context, tpl *models.MessageTemplate) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.MessageTemplate, error)
	List(ctx context.Context) ([]models.MessageTemplate, error)
	Update(ctx context.Context, tpl *models.MessageTemplate) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	FindMatches(ctx context.Context, serverMessage, operator string, op models.OperationType) ([]models.MessageTemplate, error)
	Upsert(ctx context.Context, tpl *models.MessageTemplate) (bool, error)
}

type ConfigRepository interface {
	Create(ctx context.Context, entry *models.ConfigEntry) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.ConfigEntry, error)
	List(ctx context.Context) ([]models.ConfigEntry, error)
	Update(ctx context.Context, entry *models.ConfigEntry) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	Toggle(ctx context.Context, id primitive.ObjectID) (*models.ConfigEntry, error)
}

type MongoTemplateRepository struct {
	db     *database.MongoDB
	logger *logrus.Logger
}

func NewTemplateRepository(db *database.MongoDB, logger *logrus.Logger) *MongoTemplateRepository {
	return &MongoTemplateRepository{db: db, logger: logger}
}

func (r *MongoTemplateRepository) Create(ctx context.Context, tpl *models.MessageTemplate) error {
	result, err := r.db.InsertOne(ctx, CollectionTemplates, tpl)
	if err != nil {
		return fmt.Errorf("failed to insert message template: %w", err)
	}
	tpl.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *MongoTemplateRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.MessageTemplate, error) {
	var tpl models.MessageTemplate
	if err := r.db.FindOne(ctx, CollectionTemplates, bson.M{"_id": id}, &tpl); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find message template: %w", err)
	}
	return &tpl, nil
}

func (r *MongoTemplateRepository) List(ctx context.Context) ([]models.MessageTemplate, error) {
	templates := []models.MessageTemplate{}
	opts := options.Find().SetSort(bson.D{{Key: "operator", Value: 1}, {Key: "operation", Value: 1}})
	if err := r.db.FindAll(ctx, CollectionTemplates, bson.M{}, &templates, opts); err != nil {
		return nil, fmt.Errorf("failed to list message templates: %w", err)
	}
	return templates, nil
}

func (r *MongoTemplateRepository) Update(ctx context.Context, tpl *models.MessageTemplate) error {
	result, err := r.db.UpdateOne(ctx, CollectionTemplates, bson.M{"_id": tpl.ID}, bson.M{"$set": bson.M{
		"server_message":   tpl.ServerMessage,
		"customer_message": tpl.CustomerMessage,
		"operator":         tpl.Operator,
		"operation":        tpl.Operation,
		"kind":             tpl.Kind,
	}})
	if err != nil {
		return fmt.Errorf("failed to update message template: %w", err)
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *MongoTemplateRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.db.DeleteOne(ctx, CollectionTemplates, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete message template: %w", err)
	}
	if result.DeletedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *MongoTemplateRepository) FindMatches(ctx context.Context, serverMessage, operator string, op models.OperationType) ([]models.MessageTemplate, error) {
	templates := []models.MessageTemplate{}
	err := r.db.FindAll(ctx, CollectionTemplates, bson.M{
		"server_message": serverMessage,
		"operator":       operator,
		"operation":      op,
	}, &templates)
	if err != nil {
		return nil, fmt.Errorf("failed to match message templates: %w", err)
	}
	return templates, nil
}

// Upsert keys templates by (server_message, operator, operation) so seeding is repeatable.
// It reports whether a new row was inserted.
func (r *MongoTemplateRepository) Upsert(ctx context.Context, tpl *models.MessageTemplate) (bool, error) {
	result, err := r.db.UpdateOne(ctx, CollectionTemplates,
		bson.M{"server_message": tpl.ServerMessage, "operator": tpl.Operator, "operation": tpl.Operation},
		bson.M{"$set": bson.M{"customer_message": tpl.CustomerMessage, "kind": tpl.Kind}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert message template: %w", err)
	}
	return result.UpsertedCount == 1, nil
}

type MongoConfigRepository struct {
	db     *database.MongoDB
	logger *logrus.Logger
}

func NewConfigRepository(db *database.MongoDB, logger *logrus.Logger) *MongoConfigRepository {
	return &MongoConfigRepository{db: db, logger: logger}
}

func (r *MongoConfigRepository) Create(ctx context.Context, entry *models.ConfigEntry) error {
	result, err := r.db.InsertOne(ctx, CollectionConfig, entry)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to insert config: %w", err)
	}
	entry.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *MongoConfigRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.ConfigEntry, error) {
	var entry models.ConfigEntry
	if err := r.db.FindOne(ctx, CollectionConfig, bson.M{"_id": id}, &entry); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find config: %w", err)
	}
	return &entry, nil
}

func (r *MongoConfigRepository) List(ctx context.Context) ([]models.ConfigEntry, error) {
	entries := []models.ConfigEntry{}
	if err := r.db.FindAll(ctx, CollectionConfig, bson.M{}, &entries, options.Find().SetSort(bson.D{{Key: "service", Value: 1}})); err != nil {
		return nil, fmt.Errorf("failed to list config: %w", err)
	}
	return entries, nil
}

func (r *MongoConfigRepository) Update(ctx context.Context, entry *models.ConfigEntry) error {
	result, err := r.db.UpdateOne(ctx, CollectionConfig, bson.M{"_id": entry.ID}, bson.M{"$set": bson.M{
		"service": entry.Service,
		"enabled": entry.Enabled,
		"note":    entry.Note,
	}})
	if err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *MongoConfigRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.db.DeleteOne(ctx, CollectionConfig, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}
	if result.DeletedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

// Toggle flips enabled server side so concurrent toggles never lose a write.
func (r *MongoConfigRepository) Toggle(ctx context.Context, id primitive.ObjectID) (*models.ConfigEntry, error) {
	var entry models.ConfigEntry
	pipeline := mongo.Pipeline{{{Key: "$set", Value: bson.M{"enabled": bson.M{"$not": bson.A{"$enabled"}}}}}}

	err := r.db.FindOneAndUpdate(ctx, CollectionConfig, bson.M{"_id": id}, pipeline, &entry)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to toggle config: %w", err)
	}
	return &entry, nil
}
