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

type DeviceRepository interface {
	Create(ctx context.Context, device *models.Device) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Device, error)
	List(ctx context.Context) ([]models.Device, error)
	Update(ctx context.Context, device *models.Device) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	SetStatus(ctx context.Context, id primitive.ObjectID, status bool) (*models.Device, error)
}

type MongoDeviceRepository struct {
	db     *database.MongoDB
	logger *logrus.Logger
}

func NewDeviceRepository(db *database.MongoDB, logger *logrus.Logger) *MongoDeviceRepository {
	return &MongoDeviceRepository{db: db, logger: logger}
}

func (r *MongoDeviceRepository) Create(ctx context.Context, device *models.Device) error {
	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now

	result, err := r.db.InsertOne(ctx, CollectionDevices, device)
	if err != nil {
		return fmt.Errorf("failed to insert device: %w", err)
	}
	device.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *MongoDeviceRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Device, error) {
	var device models.Device
	if err := r.db.FindOne(ctx, CollectionDevices, bson.M{"_id": id}, &device); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find device: %w", err)
	}
	return &device, nil
}

func (r *MongoDeviceRepository) List(ctx context.Context) ([]models.Device, error) {
	devices := []models.Device{}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if err := r.db.FindAll(ctx, CollectionDevices, bson.M{}, &devices, opts); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func (r *MongoDeviceRepository) Update(ctx context.Context, device *models.Device) error {
	device.UpdatedAt = time.Now().UTC()
	result, err := r.db.UpdateOne(ctx, CollectionDevices, bson.M{"_id": device.ID}, bson.M{"$set": bson.M{
		"name":         device.Name,
		"brand":        device.Brand,
		"os":           device.OS,
		"system":       device.System,
		"status":       device.Status,
		"ip":           device.IP,
		"last_connect": device.LastConnect,
		"localization": device.Localization,
		"type":         device.Type,
		"updated_at":   device.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *MongoDeviceRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.db.DeleteOne(ctx, CollectionDevices, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if result.DeletedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *MongoDeviceRepository) SetStatus(ctx context.Context, id primitive.ObjectID, status bool) (*models.Device, error) {
	var device models.Device
	err := r.db.FindOneAndUpdate(ctx, CollectionDevices, bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}}, &device)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to set device status: %w", err)
	}
	return &device, nil
}
