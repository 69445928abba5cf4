// Package validation checks form input before any network call is made.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"time"
	"unicode"

	"kaaj/internal/apperrors"

	"github.com/go-playground/validator/v10"
)

// MaxImageBytes is the largest profile photo accepted for upload.
const MaxImageBytes = 5 * 1024 * 1024

type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return strings.Join(msgs, "; ")
}

// Field returns the first error reported for field, if any.
func (e Errors) Field(field string) (FieldError, bool) {
	for _, fe := range e {
		if fe.Field == field {
			return fe, true
		}
	}
	return FieldError{}, false
}

type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

func New(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := &Validator{validate: validator.New(validator.WithRequiredStructEnabled()), now: now}
	v.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.validate.RegisterValidation("notpast", v.notPast)
	_ = v.validate.RegisterValidation("password", strongPassword)
	return v
}

// Struct validates s and returns a KindValidation *apperrors.Error wrapping
// Errors, or nil.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return apperrors.Wrap(apperrors.KindValidation, err)
	}
	fieldErrs := make(Errors, 0, len(ves))
	for _, fe := range ves {
		fieldErrs = append(fieldErrs, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: message(fe.Field(), fe.Tag()),
		})
	}
	out := apperrors.Wrap(apperrors.KindValidation, fieldErrs)
	out.Message = fieldErrs[0].Message
	return out
}

// StartOfDay is the earliest due date accepted at time now.
func StartOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

func (v *Validator) notPast(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			return true
		}
		field = field.Elem()
	}
	t, ok := field.Interface().(time.Time)
	if !ok {
		return false
	}
	return !t.Before(StartOfDay(v.now()))
}

func strongPassword(fl validator.FieldLevel) bool {
	return len(PasswordWeaknesses(fl.Field().String())) == 0
}

// PasswordWeaknesses lists the character classes missing from password.
func PasswordWeaknesses(password string) []string {
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r):
			hasSpecial = true
		}
	}
	var missing []string
	if !hasDigit {
		missing = append(missing, "digit")
	}
	if !hasLower {
		missing = append(missing, "lowercase")
	}
	if !hasUpper {
		missing = append(missing, "uppercase")
	}
	if !hasSpecial {
		missing = append(missing, "special")
	}
	return missing
}

var messages = map[string]string{
	"title.required":            "টাইটেল প্রয়োজন",
	"title.min":                 "টাইটেল খুব ছোট",
	"title.max":                 "টাইটেল খুব বড়",
	"description.max":           "বর্ণনা খুব বড়",
	"due_date.notpast":          "অতীতের তারিখ দেওয়া যাবে না",
	"priority.oneof":            "অগ্রাধিকার সঠিক নয়",
	"name.required":             "নাম প্রয়োজন",
	"name.min":                  "নাম খুব ছোট",
	"name.max":                  "নাম খুব বড়",
	"email.required":            "ইমেইল প্রয়োজন",
	"email.email":               "ইমেইল অবৈধ",
	"password.required":         "পাসওয়ার্ড প্রয়োজন",
	"password.min":              "পাসওয়ার্ড কমপক্ষে ৬ অক্ষরের হতে হবে",
	"password.password":         "পাসওয়ার্ডে সংখ্যা, ছোট ও বড় হাতের অক্ষর এবং বিশেষ চিহ্ন থাকতে হবে",
	"current_password.required": "বর্তমান পাসওয়ার্ড প্রয়োজন",
	"current_password.min":      "পাসওয়ার্ড কমপক্ষে ৬ অক্ষরের হতে হবে",
	"new_password.required":     "নতুন পাসওয়ার্ড প্রয়োজন",
	"new_password.min":          "পাসওয়ার্ড কমপক্ষে ৬ অক্ষরের হতে হবে",
	"new_password.nefield":      "নতুন পাসওয়ার্ড আগের মতো হতে পারবে না",
}

func message(field, tag string) string {
	if m, ok := messages[field+"."+tag]; ok {
		return m
	}
	return apperrors.KindValidation.Message()
}
