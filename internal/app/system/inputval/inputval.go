// Package inputval validates decoded JSON request bodies with
// waffle/pantry/validate and turns rule failures into per-field messages
// for jsonutil.ValidationError.
//
//	type createHabitInput struct {
//	    Title string `json:"title" validate:"required,max=400" label:"Title"`
//	}
//
//	if res := inputval.Validate(in); res.HasErrors() {
//	    jsonutil.ValidationError(w, res.Fields())
//	    return
//	}
package inputval

import (
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
	"github.com/dalemusser/waffle/pantry/validate"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Result collects field failures in struct order.
type Result struct {
	Errors []FieldError
}

// FieldError is one failed rule. Field is the JSON name.
type FieldError struct {
	Field   string
	Label   string
	Message string
}

func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first message, or "".
func (r *Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// Fields keys messages by JSON field name.
func (r *Result) Fields() map[string]string {
	out := make(map[string]string, len(r.Errors))
	for _, e := range r.Errors {
		out[e.Field] = e.Message
	}
	return out
}

var (
	validator     *validate.Validator
	validatorOnce sync.Once
)

// Rules beyond pantry/validate's built-ins. Each accepts "" so it composes
// with required.
func rules() *validate.Validator {
	validatorOnce.Do(func() {
		validator = validate.New(validate.WithStopOnFirstError())

		validator.RegisterRuleFunc("ymd", stringRule(func(s string) bool {
			_, err := calendar.Parse(s)
			return err == nil
		}), "ymd")
		validator.RegisterRuleFunc("hhmm", stringRule(calendar.ValidClock), "hhmm")
		validator.RegisterRuleFunc("objectid", stringRule(func(s string) bool {
			_, err := primitive.ObjectIDFromHex(s)
			return err == nil
		}), "objectid")
	})
	return validator
}

func stringRule(ok func(string) bool) func(any) bool {
	return func(value any) bool {
		s, isString := value.(string)
		return isString && (s == "" || ok(s))
	}
}

// Validate runs the struct's validate tags. label tags name fields in
// messages; untagged fields use their JSON name.
func Validate(s any) *Result {
	result := &Result{}

	err := rules().Struct(s)
	if err == nil {
		return result
	}
	errs, ok := err.(validate.Errors)
	if !ok {
		return result
	}

	meta := describe(s)
	for _, e := range errs {
		m := meta[e.Field]
		if m.label == "" {
			m.label = e.Field
		}
		result.Errors = append(result.Errors, FieldError{
			Field:   e.Field,
			Label:   m.label,
			Message: message(m, e.Rule, e.Param),
		})
	}
	return result
}

type fieldMeta struct {
	label   string
	numeric bool
}

// describe maps JSON field names to their label and whether min/max
// bound a number rather than a length.
func describe(s any) map[string]fieldMeta {
	out := make(map[string]fieldMeta)

	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return out
	}

	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		name := f.Name
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
			name = tag
		}

		kind := f.Type.Kind()
		if kind == reflect.Ptr {
			kind = f.Type.Elem().Kind()
		}
		out[name] = fieldMeta{
			label:   f.Tag.Get("label"),
			numeric: kind >= reflect.Int && kind <= reflect.Float64,
		}
	}
	return out
}

func message(m fieldMeta, rule, param string) string {
	label := m.label
	switch rule {
	case "required":
		return label + " is required."
	case "email":
		return "A valid email address is required."
	case "oneof", "enum":
		return label + " must be one of: " + strings.ReplaceAll(param, " ", ", ") + "."
	case "timezone":
		return label + " must be a valid time zone."
	case "min":
		if m.numeric {
			return label + " must be at least " + param + "."
		}
		return label + " must be at least " + param + " characters."
	case "max":
		if m.numeric {
			return label + " must be at most " + param + "."
		}
		return label + " must be at most " + param + " characters."
	case "ymd":
		return label + " must be a date in YYYY-MM-DD format."
	case "hhmm":
		return label + " must be a time in HH:MM format."
	case "objectid":
		return label + " is not a valid ID."
	default:
		return label + " is invalid."
	}
}

// PathID reads the chi URL parameter name as an ObjectID.
func PathID(r *http.Request, name string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(chi.URLParam(r, name))
	return oid, err == nil
}
