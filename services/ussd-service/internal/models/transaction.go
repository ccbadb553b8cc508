package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OperationType string

const (
	OperationActivation OperationType = "activation"
	OperationTopup      OperationType = "topup"
)

func (o OperationType) Valid() bool {
	return o == OperationActivation || o == OperationTopup
}

type TransactionStatus string

const (
	StatusPending  TransactionStatus = "PENDING"
	StatusSuccess  TransactionStatus = "SUCCESS"
	StatusFailed   TransactionStatus = "FAILED"
	StatusRefused  TransactionStatus = "REFUSED"
	StatusActivate TransactionStatus = "ACTIVATE"
)

func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusRefused, StatusActivate:
		return true
	}
	return false
}

// IsFailure reports statuses after which the debited cost goes back to the user.
func (s TransactionStatus) IsFailure() bool {
	return s == StatusFailed || s == StatusRefused
}

type OutcomeKind string

const (
	OutcomeSuccess      OutcomeKind = "SUCCESS"
	OutcomeFailure      OutcomeKind = "FAILURE"
	OutcomeUnclassified OutcomeKind = "UNCLASSIFIED"
)

// Transaction is one activation or top-up request. Both types share the collection.
type Transaction struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Type            OperationType      `bson:"type" json:"type"`
	DateOperation   int64              `bson:"date_operation" json:"date_operation"`
	Operator        string             `bson:"operator" json:"operator"`
	PhoneNumber     string             `bson:"phone_number" json:"phone_number"`
	Code            string             `bson:"code,omitempty" json:"code,omitempty"`
	Serial          string             `bson:"serial,omitempty" json:"serial,omitempty"`
	Puk             string             `bson:"puk,omitempty" json:"puk,omitempty"`
	Amount          float64            `bson:"amount,omitempty" json:"amount,omitempty"`
	Offer           string             `bson:"offer,omitempty" json:"offer,omitempty"`
	NewBalance      float64            `bson:"new_balance,omitempty" json:"new_balance,omitempty"`
	UssdCode        string             `bson:"ussd_code" json:"ussd_code"`
	DateResponse    int64              `bson:"date_response" json:"date_response"`
	RawResponse     string             `bson:"raw_response" json:"raw_response"`
	Status          TransactionStatus  `bson:"status" json:"status"`
	UserID          primitive.ObjectID `bson:"user_id" json:"user_id"`
	SimCardID       primitive.ObjectID `bson:"sim_card_id" json:"sim_card_id"`
	CustomerMessage string             `bson:"customer_message" json:"customer_message"`
	Outcome         OutcomeKind        `bson:"outcome,omitempty" json:"outcome,omitempty"`
	Cost            float64            `bson:"cost" json:"cost"`
	Refunded        bool               `bson:"refunded" json:"refunded"`
	CancelBatch     string             `bson:"cancel_batch,omitempty" json:"-"`
	LegacyID        string             `bson:"legacy_id,omitempty" json:"-"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

// HasResponse reports whether the executor callback has been recorded.
func (t *Transaction) HasResponse() bool {
	return t.RawResponse != ""
}

// Resolution is the write applied when a PENDING transaction receives its executor response.
type Resolution struct {
	Status          TransactionStatus
	Outcome         OutcomeKind
	CustomerMessage string
	RawResponse     string
	DateResponse    int64
	NewBalance      float64
}

type TransactionFilter struct {
	Type     OperationType
	Status   TransactionStatus
	UserID   *primitive.ObjectID
	Operator string
	SimCards []primitive.ObjectID
	Limit    int64
	Skip     int64
}
