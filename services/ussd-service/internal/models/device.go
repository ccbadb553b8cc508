package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Device struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Brand        string             `bson:"brand" json:"brand"`
	OS           string             `bson:"os" json:"os"`
	System       string             `bson:"system" json:"system"`
	Status       bool               `bson:"status" json:"status"`
	IP           string             `bson:"ip" json:"ip"`
	LastConnect  *time.Time         `bson:"last_connect,omitempty" json:"last_connect,omitempty"`
	Localization string             `bson:"localization" json:"localization"`
	Type         string             `bson:"type" json:"type"`
	LegacyID     string             `bson:"legacy_id,omitempty" json:"-"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

const DeviceTypeExecutor = "EXECUTOR"
