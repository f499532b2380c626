package expense

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/zombor/trip-expenses/internal/database"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their wire names so messages match what callers send.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	v.RegisterCustomTypeFunc(nullDecimalValue, decimal.NullDecimal{})
	v.RegisterCustomTypeFunc(dateValue, Date{})
	v.RegisterCustomTypeFunc(optionalValue,
		Optional[string]{},
		Optional[int64]{},
		Optional[decimal.Decimal]{},
		Optional[TaxType]{},
	)
	return v
}

func decimalValue(field reflect.Value) interface{} {
	d, ok := field.Interface().(decimal.Decimal)
	if !ok {
		return nil
	}
	return d.InexactFloat64()
}

func nullDecimalValue(field reflect.Value) interface{} {
	d, ok := field.Interface().(decimal.NullDecimal)
	if !ok || !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}

func dateValue(field reflect.Value) interface{} {
	d, ok := field.Interface().(Date)
	if !ok || d.IsZero() {
		return nil
	}
	return d.String()
}

type validatable interface {
	validationValue() (any, bool)
}

func optionalValue(field reflect.Value) interface{} {
	o, ok := field.Interface().(validatable)
	if !ok {
		return nil
	}
	v, ok := o.validationValue()
	if !ok {
		return nil
	}
	switch x := v.(type) {
	case decimal.Decimal:
		return x.InexactFloat64()
	case TaxType:
		return string(x)
	}
	return v
}

// validateModel runs the struct tag rules of model and reports failures as a
// ValidationError keyed by JSON field name.
func validateModel(entity string, model any) error {
	err := validate.Struct(model)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &database.ValidationError{Entity: entity, Reason: err.Error()}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &database.ValidationError{Entity: entity, Fields: fields}
}

func checkDateRange(start, end Date) error {
	if end.Before(start.Time) {
		return &database.ValidationError{
			Entity: "trip",
			Fields: map[string]string{"end_date": "gtefield=start_date"},
			Reason: "end date " + end.String() + " is before start date " + start.String(),
		}
	}
	return nil
}
