package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/normalize"
)

const msgIncomplete = "Data is incomplete"

// decodeBody reads the request body through the normalization boundary into dst.
func decodeBody(c *gin.Context, dst interface{}, aliases normalize.Aliases) error {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		return badRequest(msgIncomplete)
	}
	if err := normalize.Decode(body, dst, aliases); err != nil {
		return badRequest(err.Error())
	}
	return nil
}

type submitPayload struct {
	Operator      normalize.String  `json:"operator"`
	PhoneNumber   normalize.String  `json:"phone_number"`
	Code          normalize.String  `json:"code"`
	Serial        normalize.String  `json:"serial"`
	Puk           normalize.String  `json:"puk"`
	Amount        normalize.Float64 `json:"amount"`
	Offer         normalize.String  `json:"offer"`
	DateOperation normalize.Int64   `json:"date_operation"`
}

func (p submitPayload) request(op models.OperationType) models.SubmitRequest {
	return models.SubmitRequest{
		Type:          op,
		Operator:      string(p.Operator),
		PhoneNumber:   string(p.PhoneNumber),
		Code:          strings.TrimSpace(string(p.Code)),
		Serial:        string(p.Serial),
		Puk:           string(p.Puk),
		Amount:        float64(p.Amount),
		Offer:         strings.TrimSpace(string(p.Offer)),
		DateOperation: int64(p.DateOperation),
	}
}

type loginPayload struct {
	Phone    normalize.String `json:"phone"`
	Password string           `json:"password"`
}

type userPayload struct {
	Username      normalize.String       `json:"username"`
	FirstName     normalize.String       `json:"first_name"`
	LastName      normalize.String       `json:"last_name"`
	Phone         normalize.String       `json:"phone"`
	City          normalize.String       `json:"city"`
	Address       normalize.String       `json:"address"`
	Email         normalize.String       `json:"email"`
	Password      string                 `json:"password"`
	Role          normalize.String       `json:"role"`
	Status        normalize.String       `json:"status"`
	CanActivate   normalize.OptionalBool `json:"can_activate"`
	CanTopup      normalize.OptionalBool `json:"can_topup"`
	Balance       normalize.Float64      `json:"balance"`
	LoyaltyPoints normalize.Int64        `json:"loyalty_points"`
}

// apply copies the fields present in the payload. Balance is left to the caller.
func (p userPayload) apply(u *models.User) {
	setString(&u.Username, p.Username)
	setString(&u.FirstName, p.FirstName)
	setString(&u.LastName, p.LastName)
	setString(&u.Phone, p.Phone)
	setString(&u.City, p.City)
	setString(&u.Address, p.Address)
	setString(&u.Email, p.Email)
	if p.Role != "" {
		u.Role = models.Role(p.Role)
	}
	if p.Status != "" {
		u.Status = models.UserStatus(p.Status)
	}
	setBool(&u.CanActivate, p.CanActivate)
	setBool(&u.CanTopup, p.CanTopup)
	if p.LoyaltyPoints != 0 {
		u.LoyaltyPoints = int64(p.LoyaltyPoints)
	}
}

type balancePayload struct {
	Delta normalize.Float64 `json:"delta"`
}

type devicePayload struct {
	Name         normalize.String       `json:"name"`
	Brand        normalize.String       `json:"brand"`
	OS           normalize.String       `json:"os"`
	System       normalize.String       `json:"system"`
	IP           normalize.String       `json:"ip"`
	Localization normalize.String       `json:"localization"`
	Type         normalize.String       `json:"type"`
	Status       normalize.OptionalBool `json:"status"`
}

func (p devicePayload) apply(d *models.Device) {
	setString(&d.Name, p.Name)
	setString(&d.Brand, p.Brand)
	setString(&d.OS, p.OS)
	setString(&d.System, p.System)
	setString(&d.IP, p.IP)
	setString(&d.Localization, p.Localization)
	setString(&d.Type, p.Type)
	setBool(&d.Status, p.Status)
}

type statusPayload struct {
	Status normalize.OptionalBool `json:"status"`
}

type simCardPayload struct {
	Operator          normalize.String          `json:"operator"`
	Number            normalize.String          `json:"number"`
	Connected         normalize.OptionalBool    `json:"connected"`
	ActivationEnabled normalize.OptionalBool    `json:"activation_enabled"`
	TopupEnabled      normalize.OptionalBool    `json:"topup_enabled"`
	Balance           normalize.OptionalFloat64 `json:"balance"`
	OwnerDeviceID     normalize.String          `json:"owner_device_id"`
	Pin               normalize.String          `json:"pin"`
	Pin2              normalize.String          `json:"pin2"`
	Puk               normalize.String          `json:"puk"`
	Charged           normalize.OptionalBool    `json:"charged"`
}

// apply copies every field except the capability flags, see applyFlags and flags.
func (p simCardPayload) apply(s *models.SimCard) error {
	setString(&s.Operator, p.Operator)
	setString(&s.Number, p.Number)
	setString(&s.Pin, p.Pin)
	setString(&s.Pin2, p.Pin2)
	setString(&s.Puk, p.Puk)
	setBool(&s.Connected, p.Connected)
	setBool(&s.Charged, p.Charged)
	if p.Balance.Set {
		s.Balance = p.Balance.Value
	}
	if p.OwnerDeviceID != "" {
		id, err := primitive.ObjectIDFromHex(string(p.OwnerDeviceID))
		if err != nil {
			return badRequest("invalid owner_device_id")
		}
		s.DeviceID = id
	}
	return nil
}

// applyFlags sets the capability flags present in the payload on s.
func (p simCardPayload) applyFlags(s *models.SimCard) {
	setBool(&s.ActivationEnabled, p.ActivationEnabled)
	setBool(&s.TopupEnabled, p.TopupEnabled)
}

func (p simCardPayload) flags() (models.SimCardFlags, bool) {
	var flags models.SimCardFlags
	if p.ActivationEnabled.Set {
		v := p.ActivationEnabled.Value
		flags.ActivationEnabled = &v
	}
	if p.TopupEnabled.Set {
		v := p.TopupEnabled.Value
		flags.TopupEnabled = &v
	}
	return flags, p.ActivationEnabled.Set || p.TopupEnabled.Set
}

type templatePayload struct {
	ServerMessage   string           `json:"server_message"`
	CustomerMessage string           `json:"customer_message"`
	Operator        normalize.String `json:"operator"`
	Operation       normalize.String `json:"operation"`
	Kind            normalize.String `json:"kind"`
}

func (p templatePayload) apply(t *models.MessageTemplate) {
	if p.ServerMessage != "" {
		t.ServerMessage = p.ServerMessage
	}
	if p.CustomerMessage != "" {
		t.CustomerMessage = p.CustomerMessage
	}
	setString(&t.Operator, p.Operator)
	if p.Operation != "" {
		t.Operation = models.OperationType(strings.ToLower(string(p.Operation)))
	}
	if p.Kind != "" {
		t.Kind = models.OutcomeKind(p.Kind)
	}
}

type configPayload struct {
	Service normalize.String       `json:"service"`
	Enabled normalize.OptionalBool `json:"enabled"`
	Note    normalize.String       `json:"note"`
}

func (p configPayload) apply(e *models.ConfigEntry) {
	setString(&e.Service, p.Service)
	setString(&e.Note, p.Note)
	setBool(&e.Enabled, p.Enabled)
}

func setString(dst *string, v normalize.String) {
	if s := strings.TrimSpace(string(v)); s != "" {
		*dst = s
	}
}

func setBool(dst *bool, v normalize.OptionalBool) {
	if v.Set {
		*dst = v.Value
	}
}
