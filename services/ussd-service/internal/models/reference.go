package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// MessageTemplate maps an exact executor response to an outcome and the text the customer sees.
type MessageTemplate struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id" yaml:"-"`
	ServerMessage   string             `bson:"server_message" json:"server_message" yaml:"server_message"`
	CustomerMessage string             `bson:"customer_message" json:"customer_message" yaml:"customer_message"`
	Operator        string             `bson:"operator" json:"operator" yaml:"operator"`
	Operation       OperationType      `bson:"operation" json:"operation" yaml:"operation"`
	Kind            OutcomeKind        `bson:"kind" json:"kind" yaml:"kind"`
	LegacyID        string             `bson:"legacy_id,omitempty" json:"-" yaml:"-"`
}

// ConfigEntry is an admin-toggled feature switch.
type ConfigEntry struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Service  string             `bson:"service" json:"service"`
	Enabled  bool               `bson:"enabled" json:"enabled"`
	Note     string             `bson:"note" json:"note"`
	LegacyID string             `bson:"legacy_id,omitempty" json:"-"`
}
