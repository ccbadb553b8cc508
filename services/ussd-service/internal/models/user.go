package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
	RoleExecutor Role = "EXECUTOR"
)

type UserStatus string

const (
	UserStatusAccept  UserStatus = "ACCEPT"
	UserStatusPending UserStatus = "PENDING"
	UserStatusBlock   UserStatus = "BLOCK"
)

type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username      string             `bson:"username" json:"username"`
	FirstName     string             `bson:"first_name" json:"first_name"`
	LastName      string             `bson:"last_name" json:"last_name"`
	Phone         string             `bson:"phone" json:"phone"`
	City          string             `bson:"city" json:"city"`
	Address       string             `bson:"address" json:"address"`
	Email         string             `bson:"email" json:"email"`
	Balance       float64            `bson:"balance" json:"balance"`
	LoyaltyPoints int64              `bson:"loyalty_points" json:"loyalty_points"`
	Role          Role               `bson:"role" json:"role"`
	CanActivate   bool               `bson:"can_activate" json:"can_activate"`
	CanTopup      bool               `bson:"can_topup" json:"can_topup"`
	Status        UserStatus         `bson:"status" json:"status"`
	PasswordHash  string             `bson:"password_hash" json:"-"`
	LegacyID      string             `bson:"legacy_id,omitempty" json:"-"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// Can reports whether the user holds the permission flag for op.
func (u *User) Can(op OperationType) bool {
	switch op {
	case OperationActivation:
		return u.CanActivate
	case OperationTopup:
		return u.CanTopup
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
