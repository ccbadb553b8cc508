package normalize

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// Aliases maps a folded legacy key to the canonical snake_case key.
type Aliases map[string]string

var (
	TransactionAliases = Aliases{
		"montant":     "amount",
		"offre":       "offer",
		"serie":       "serial",
		"msgresponse": "raw_response",
		"msgtoreturn": "customer_message",
		"codeussd":    "ussd_code",
		"simcard":     "sim_card_id",
		"user":        "user_id",
		"id":          "transaction_id",
	}

	UserAliases = Aliases{
		"nom":     "last_name",
		"prenom":  "first_name",
		"tel":     "phone",
		"ville":   "city",
		"adresse": "address",
		"fidilio": "loyalty_points",
		"solde":   "balance",
	}

	DeviceAliases = Aliases{
		"nom": "name",
	}

	SimCardAliases = Aliases{
		"device":           "owner_device_id",
		"numero":           "number",
		"activationstatus": "activation_enabled",
		"topupstatus":      "topup_enabled",
	}

	TemplateAliases = Aliases{
		"type": "kind",
	}

	ConfigAliases = Aliases{
		"status": "enabled",
	}
)

var tagCache sync.Map

// Decode unmarshals a JSON object into dst after rewriting every key to the json tag
// of the matching dst field. Keys are matched after folding case, '_', '-' and spaces,
// then through aliases. Unknown keys are dropped.
func Decode(data []byte, dst interface{}, aliases Aliases) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid JSON object: %w", err)
	}

	tags, err := jsonTags(dst)
	if err != nil {
		return err
	}

	canonical := make(map[string]json.RawMessage, len(raw))
	for key, value := range raw {
		folded := foldKey(key)
		if alias, ok := aliases[folded]; ok {
			folded = foldKey(alias)
		}
		if tag, ok := tags[folded]; ok {
			canonical[tag] = value
		}
	}

	body, err := json.Marshal(canonical)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

func jsonTags(dst interface{}) (map[string]string, error) {
	t := reflect.TypeOf(dst)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("decode target must be a pointer to a struct, got %T", dst)
	}
	t = t.Elem()

	if cached, ok := tagCache.Load(t); ok {
		return cached.(map[string]string), nil
	}

	tags := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		tags[foldKey(name)] = name
	}
	tagCache.Store(t, tags)
	return tags, nil
}

// String accepts a JSON string or number.
type String string

func (s *String) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = String(strings.TrimSpace(str))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = String(num.String())
	return nil
}

// Float64 accepts a JSON number or a numeric string; "" is zero.
type Float64 float64

func (f *Float64) UnmarshalJSON(b []byte) error {
	s, err := scalar(b)
	if err != nil || s == "" {
		return err
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return fmt.Errorf("expected a number, got %s", b)
	}
	*f = Float64(v)
	return nil
}

// Int64 accepts a JSON number or a numeric string; "" is zero.
type Int64 int64

func (i *Int64) UnmarshalJSON(b []byte) error {
	s, err := scalar(b)
	if err != nil || s == "" {
		return err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("expected an integer, got %s", b)
	}
	*i = Int64(v)
	return nil
}

// Bool accepts true/false, 1/0 and their string forms.
type Bool bool

func (v *Bool) UnmarshalJSON(b []byte) error {
	s, err := scalar(b)
	if err != nil || s == "" {
		return err
	}
	parsed, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return fmt.Errorf("expected a boolean, got %s", b)
	}
	*v = Bool(parsed)
	return nil
}

// OptionalBool keeps "absent" apart from false for partial updates.
type OptionalBool struct {
	Set   bool
	Value bool
}

func (o *OptionalBool) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var v Bool
	if err := v.UnmarshalJSON(b); err != nil {
		return err
	}
	o.Set = true
	o.Value = bool(v)
	return nil
}

// OptionalFloat64 is the Float64 counterpart of OptionalBool, so an explicit 0 can be written.
type OptionalFloat64 struct {
	Set   bool
	Value float64
}

func (o *OptionalFloat64) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var v Float64
	if err := v.UnmarshalJSON(b); err != nil {
		return err
	}
	o.Set = true
	o.Value = float64(v)
	return nil
}

func scalar(b []byte) (string, error) {
	if string(b) == "null" {
		return "", nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	return string(b), nil
}
