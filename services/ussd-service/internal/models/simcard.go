package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	OperatorMarocTelecom = "Maroc Telecom"
	OperatorInwi         = "inwi"
	OperatorOrange       = "Orange MA"
)

// SimCard is a physical SIM held by an executor device. Pin, Pin2 and Puk are encrypted at rest.
type SimCard struct {
	ID                   primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Operator             string              `bson:"operator" json:"operator"`
	OperatorKey          string              `bson:"operator_key" json:"-"`
	Number               string              `bson:"number" json:"number"`
	Connected            bool                `bson:"connected" json:"connected"`
	ActivationEnabled    bool                `bson:"activation_enabled" json:"activation_enabled"`
	TopupEnabled         bool                `bson:"topup_enabled" json:"topup_enabled"`
	Balance              float64             `bson:"balance" json:"balance"`
	TodayActivationCount int                 `bson:"today_activation_count" json:"today_activation_count"`
	TodayTopupCount      int                 `bson:"today_topup_count" json:"today_topup_count"`
	CounterDay           string              `bson:"counter_day" json:"counter_day"`
	LastConnect          *time.Time          `bson:"last_connect,omitempty" json:"last_connect,omitempty"`
	DeviceID             primitive.ObjectID  `bson:"owner_device_id" json:"owner_device_id"`
	Pin                  string              `bson:"pin,omitempty" json:"pin,omitempty"`
	Pin2                 string              `bson:"pin2,omitempty" json:"pin2,omitempty"`
	Puk                  string              `bson:"puk,omitempty" json:"puk,omitempty"`
	Charged              bool                `bson:"charged" json:"charged"`
	ReservedBy           *primitive.ObjectID `bson:"reserved_by,omitempty" json:"reserved_by,omitempty"`
	ReservedUntil        *time.Time          `bson:"reserved_until,omitempty" json:"reserved_until,omitempty"`
	LegacyID             string              `bson:"legacy_id,omitempty" json:"-"`
	CreatedAt            time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time           `bson:"updated_at" json:"updated_at"`
}

// Enabled returns the capability flag for op.
func (s *SimCard) Enabled(op OperationType) bool {
	switch op {
	case OperationActivation:
		return s.ActivationEnabled
	case OperationTopup:
		return s.TopupEnabled
	}
	return false
}

type SimCardFlags struct {
	ActivationEnabled *bool `json:"activation_enabled"`
	TopupEnabled      *bool `json:"topup_enabled"`
}
