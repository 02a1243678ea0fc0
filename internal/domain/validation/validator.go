package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator checks OCPP payload structs and frame-level constraints.
type Validator struct {
	validate *validator.Validate
}

// ValidationError is a single failed constraint.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return e.Message
}

// ValidationErrors is the full set of failed constraints for one payload.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

var idTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9\-._~]+$`)
var chargePointIDPattern = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)

// NewValidator returns a Validator with the OCPP custom rules registered.
func NewValidator() *Validator {
	validate := validator.New()
	validate.RegisterValidation("ocpp_datetime", validateDateTime)
	validate.RegisterValidation("ocpp_id_token", validateIdToken)
	validate.RegisterValidation("ocpp_meter_value", validateMeterValue)
	return &Validator{validate: validate}
}

// ValidateStruct runs the tag constraints on a payload struct.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var out ValidationErrors
	if fieldErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrors {
			out = append(out, ValidationError{
				Field:   fe.Field(),
				Tag:     fe.Tag(),
				Value:   fmt.Sprintf("%v", fe.Value()),
				Message: errorMessage(fe),
			})
		}
		return out
	}
	return err
}

// ValidateMessageID enforces the OCPP-J 36 character messageId limit.
func (v *Validator) ValidateMessageID(messageID string) error {
	if messageID == "" {
		return ValidationError{
			Field:   "messageId",
			Tag:     "required",
			Message: "Message ID is required",
		}
	}
	if len(messageID) > 36 {
		return ValidationError{
			Field:   "messageId",
			Tag:     "max",
			Value:   messageID,
			Message: "Message ID must not exceed 36 characters",
		}
	}
	return nil
}

// ValidateChargePointID checks the identity extracted from the URL path.
func (v *Validator) ValidateChargePointID(chargePointID string) error {
	return ValidateChargePointID(chargePointID)
}

// ValidateChargePointID checks a charge point identity against the length
// and character-set rules.
func ValidateChargePointID(chargePointID string) error {
	if chargePointID == "" {
		return ValidationError{
			Field:   "chargePointId",
			Tag:     "required",
			Message: "Charge point ID is required",
		}
	}
	if len(chargePointID) > 64 {
		return ValidationError{
			Field:   "chargePointId",
			Tag:     "max",
			Value:   chargePointID,
			Message: "Charge point ID must not exceed 64 characters",
		}
	}
	if !chargePointIDPattern.MatchString(chargePointID) {
		return ValidationError{
			Field:   "chargePointId",
			Tag:     "format",
			Value:   chargePointID,
			Message: "Charge point ID can only contain alphanumeric characters, hyphens and underscores",
		}
	}
	return nil
}

func validateDateTime(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := time.Parse(time.RFC3339, value)
	return err == nil
}

func validateIdToken(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	if len(value) > 20 {
		return false
	}
	return idTokenPattern.MatchString(value)
}

func validateMeterValue(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return false
	}
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "min":
		return fmt.Sprintf("Field '%s' must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("Field '%s' must not exceed %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("Field '%s' must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("Field '%s' must be at least %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("Field '%s' must be one of [%s]", fe.Field(), fe.Param())
	case "ocpp_datetime":
		return fmt.Sprintf("Field '%s' must be a valid RFC3339 datetime", fe.Field())
	case "ocpp_id_token":
		return fmt.Sprintf("Field '%s' must be a valid ID token (max 20 characters)", fe.Field())
	case "ocpp_meter_value":
		return fmt.Sprintf("Field '%s' must be a numeric meter value", fe.Field())
	default:
		return fmt.Sprintf("Field '%s' failed validation for tag '%s'", fe.Field(), fe.Tag())
	}
}
