// Package legacy copies the tables of the previous SQL deployment into the
// document store. Rows are read through gorm so the same code reads the
// production Postgres dump and the SQLite files operators export by hand.
package legacy

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

type deviceRow struct {
	ID           string         `gorm:"column:ID;primaryKey"`
	Name         sql.NullString `gorm:"column:NOM"`
	System       sql.NullString `gorm:"column:SYSTEM"`
	LastConnect  sql.NullString `gorm:"column:LAST_CONNECT"`
	Localization sql.NullString `gorm:"column:LOCALIZATION"`
	Status       sql.NullString `gorm:"column:STATUS"`
	IP           sql.NullString `gorm:"column:IP"`
	Brand        sql.NullString `gorm:"column:BRAND"`
	OS           sql.NullString `gorm:"column:OS"`
}

func (deviceRow) TableName() string { return "DEVICE" }

type simCardRow struct {
	ID                string         `gorm:"column:ID;primaryKey"`
	Operator          sql.NullString `gorm:"column:OPERATOR"`
	Number            sql.NullString `gorm:"column:NUMBER"`
	Connected         sql.NullString `gorm:"column:CONNECTED"`
	ActivationStatus  sql.NullString `gorm:"column:ACTIVATION_STATUS"`
	TopupStatus       sql.NullString `gorm:"column:TOPUP_STATUS"`
	Balance           sql.NullString `gorm:"column:BALANCE"`
	TodayNbActivation sql.NullString `gorm:"column:TODAY_NB_ACTIVATION"`
	TodayNbTopup      sql.NullString `gorm:"column:TODAY_NB_TOPUP"`
	LastConnect       sql.NullString `gorm:"column:LAST_CONNECT"`
	Device            sql.NullString `gorm:"column:DEVICE"`
	Pin               sql.NullString `gorm:"column:PIN"`
	Puk               sql.NullString `gorm:"column:PUK"`
	Charged           sql.NullString `gorm:"column:CHARGED"`
}

func (simCardRow) TableName() string { return "SIM_CARD" }

type userRow struct {
	ID       string         `gorm:"column:ID;primaryKey"`
	Username sql.NullString `gorm:"column:USERNAME"`
	LastName sql.NullString `gorm:"column:NOM"`
	First    sql.NullString `gorm:"column:PRENOM"`
	Phone    sql.NullString `gorm:"column:TEL"`
	City     sql.NullString `gorm:"column:VILLE"`
	Address  sql.NullString `gorm:"column:ADRESSE"`
	Status   sql.NullString `gorm:"column:STATUS"`
	Balance  sql.NullString `gorm:"column:BALANCE"`
	Loyalty  sql.NullString `gorm:"column:FIDILIO"`
	Email    sql.NullString `gorm:"column:EMAIL"`
	Password sql.NullString `gorm:"column:PASSWORD"`
	Role     sql.NullString `gorm:"column:ROLE"`
}

func (userRow) TableName() string { return "USER" }

// operationRow covers both ACTIVATION and TOPUP; the top-up only columns stay null on activations.
type operationRow struct {
	ID            string         `gorm:"column:ID;primaryKey"`
	DateOperation sql.NullString `gorm:"column:DATE_OPERATION"`
	Operator      sql.NullString `gorm:"column:OPERATOR"`
	Serial        sql.NullString `gorm:"column:SERIE"`
	PhoneNumber   sql.NullString `gorm:"column:PHONE_NUMBER"`
	Puk           sql.NullString `gorm:"column:PUK"`
	CodeUssd      sql.NullString `gorm:"column:CODE_USSD"`
	DateResponse  sql.NullString `gorm:"column:DATE_RESPONSE"`
	MsgResponse   sql.NullString `gorm:"column:MSG_RESPONSE"`
	MsgToReturn   sql.NullString `gorm:"column:MSG_TO_RETURN"`
	Status        sql.NullString `gorm:"column:STATUS"`
	User          sql.NullString `gorm:"column:USER"`
	SimCard       sql.NullString `gorm:"column:SIM_CARD"`
	Amount        sql.NullString `gorm:"column:MONTANT"`
	Offer         sql.NullString `gorm:"column:OFFRE"`
	NewBalance    sql.NullString `gorm:"column:NEW_BALANCE"`
}

type templateRow struct {
	ID              string         `gorm:"column:id;primaryKey"`
	ServerMessage   sql.NullString `gorm:"column:SERVER_MESSAGE"`
	CustomerMessage sql.NullString `gorm:"column:CUSTOMER_MESSAGE"`
	Type            sql.NullString `gorm:"column:TYPE"`
	Operator        sql.NullString `gorm:"column:OPERATOR"`
	Operation       sql.NullString `gorm:"column:OPERATION"`
}

func (templateRow) TableName() string { return "messages" }

type configRow struct {
	ID      string         `gorm:"column:ID;primaryKey"`
	Service sql.NullString `gorm:"column:SERVICE"`
	Status  sql.NullString `gorm:"column:STATUS"`
}

func (configRow) TableName() string { return "CONFIG" }

func str(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return strings.TrimSpace(v.String)
}

// num accepts the comma decimal separator some rows were written with.
func num(v sql.NullString) float64 {
	f, err := strconv.ParseFloat(strings.ReplaceAll(str(v), ",", "."), 64)
	if err != nil {
		return 0
	}
	return f
}

func integer(v sql.NullString) int64 {
	return int64(num(v))
}

// flag reads the many spellings of a boolean column: 1/0, true/false, ON/OFF, ACTIVE.
func flag(v sql.NullString) bool {
	switch strings.ToLower(str(v)) {
	case "1", "true", "on", "yes", "active", "enabled", "accept":
		return true
	}
	return false
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

// millis returns epoch milliseconds from a numeric column or one of the date layouts in use.
// Second-precision numbers are scaled up.
func millis(v sql.NullString) int64 {
	s := str(v)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 0 && n < 1e11 {
			return n * 1000
		}
		return n
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

func timestamp(v sql.NullString) *time.Time {
	ms := millis(v)
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
