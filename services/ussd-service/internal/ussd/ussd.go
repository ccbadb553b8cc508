package ussd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
)

var (
	Denominations = []float64{5, 10, 20, 50, 100, 200}
	Offers        = []string{"*1", "*2", "*3", "*6", "*22"}
)

var ErrMissingPIN = errors.New("sim card has no PIN configured")

// Params are the inputs of one USSD command. PIN is only read by formats that need it.
type Params struct {
	Phone  string
	Code   string
	Amount float64
	Offer  string
	PIN    string
}

type formatFunc func(p Params) (string, error)

type key struct {
	operator string
	op       models.OperationType
}

var formats = map[key]formatFunc{
	{models.OperatorMarocTelecom, models.OperationActivation}: func(p Params) (string, error) {
		return fmt.Sprintf("*555*%s*%s#", p.Phone, p.Code), nil
	},
	{models.OperatorMarocTelecom, models.OperationTopup}: func(p Params) (string, error) {
		return fmt.Sprintf("*3*%s*%s%s#", p.Phone, amount(p.Amount), p.Offer), nil
	},
	{models.OperatorInwi, models.OperationActivation}: func(p Params) (string, error) {
		return fmt.Sprintf("*120*%s*%s#", p.Code, p.Phone), nil
	},
	{models.OperatorInwi, models.OperationTopup}: func(p Params) (string, error) {
		return fmt.Sprintf("*139*%s*%s%s#", amount(p.Amount), p.Phone, p.Offer), nil
	},
	{models.OperatorOrange, models.OperationActivation}: func(p Params) (string, error) {
		return fmt.Sprintf("#144*%s*%s#", p.Phone, p.Code), nil
	},
	{models.OperatorOrange, models.OperationTopup}: func(p Params) (string, error) {
		if p.PIN == "" {
			return "", ErrMissingPIN
		}
		return fmt.Sprintf("*120*%s*%s*%s%s#", p.PIN, p.Phone, amount(p.Amount), p.Offer), nil
	},
}

// Build renders the command the executor dials. operator must already be canonical.
func Build(operator string, op models.OperationType, p Params) (string, error) {
	format, ok := formats[key{operator, op}]
	if !ok {
		return "", fmt.Errorf("no USSD format for %s %s", operator, op)
	}
	return format(p)
}

// NeedsPIN reports whether the format for (operator, op) embeds the SIM PIN.
func NeedsPIN(operator string, op models.OperationType) bool {
	return operator == models.OperatorOrange && op == models.OperationTopup
}

func ValidAmount(a float64) bool {
	for _, d := range Denominations {
		if a == d {
			return true
		}
	}
	return false
}

// ValidOffer accepts the empty offer.
func ValidOffer(o string) bool {
	if o == "" {
		return true
	}
	for _, offer := range Offers {
		if o == offer {
			return true
		}
	}
	return false
}

func amount(a float64) string {
	return strconv.FormatFloat(a, 'f', -1, 64)
}
