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
	"github.com/grigta/simgate/services/ussd-service/internal/normalize"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	Debit(ctx context.Context, id primitive.ObjectID, amount float64) (*models.User, error)
	Credit(ctx context.Context, id primitive.ObjectID, amount float64) (*models.User, error)
}

type MongoUserRepository struct {
	db     *database.MongoDB
	logger *logrus.Logger
}

func NewUserRepository(db *database.MongoDB, logger *logrus.Logger) *MongoUserRepository {
	return &MongoUserRepository{db: db, logger: logger}
}

func (r *MongoUserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Role = normalize.Role(user.Role)

	result, err := r.db.InsertOne(ctx, CollectionUsers, user)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	user.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"phone": phone})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := r.db.FindOne(ctx, CollectionUsers, filter, &user); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return normalized(&user), nil
}

func (r *MongoUserRepository) List(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if err := r.db.FindAll(ctx, CollectionUsers, bson.M{}, &users, opts); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	for i := range users {
		normalized(&users[i])
	}
	return users, nil
}

// Update writes profile, permission and status fields. Balance only moves through Debit and Credit.
func (r *MongoUserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	set := bson.M{
		"username":       user.Username,
		"first_name":     user.FirstName,
		"last_name":      user.LastName,
		"phone":          user.Phone,
		"city":           user.City,
		"address":        user.Address,
		"email":          user.Email,
		"loyalty_points": user.LoyaltyPoints,
		"role":           normalize.Role(user.Role),
		"can_activate":   user.CanActivate,
		"can_topup":      user.CanTopup,
		"status":         user.Status,
		"updated_at":     user.UpdatedAt,
	}
	if user.PasswordHash != "" {
		set["password_hash"] = user.PasswordHash
	}

	result, err := r.db.UpdateOne(ctx, CollectionUsers, bson.M{"_id": user.ID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *MongoUserRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.db.DeleteOne(ctx, CollectionUsers, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.DeletedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

// Debit subtracts amount only if the balance covers it. It returns nil, nil when the user is
// missing or the balance is too low; no write happens in that case.
func (r *MongoUserRepository) Debit(ctx context.Context, id primitive.ObjectID, amount float64) (*models.User, error) {
	var user models.User
	err := r.db.FindOneAndUpdate(ctx, CollectionUsers,
		bson.M{"_id": id, "balance": bson.M{"$gte": amount}},
		bson.M{
			"$inc": bson.M{"balance": -amount},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		&user,
	)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to debit user: %w", err)
	}
	return normalized(&user), nil
}

func (r *MongoUserRepository) Credit(ctx context.Context, id primitive.ObjectID, amount float64) (*models.User, error) {
	var user models.User
	err := r.db.FindOneAndUpdate(ctx, CollectionUsers,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"balance": amount},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		&user,
	)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to credit user: %w", err)
	}
	return normalized(&user), nil
}

func normalized(user *models.User) *models.User {
	user.Role = normalize.Role(user.Role)
	user.Status = normalize.UserStatus(user.Status)
	return user
}
