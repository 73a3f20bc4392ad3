package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mattjoyce/inbox/internal/message"
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		return e164.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("utcstamp", func(fl validator.FieldLevel) bool {
		_, err := parseUTCStamp(fl.Field().String())
		return err == nil
	})
	return v
}

// payload is the wire shape of a delivery. Text is a pointer so an absent or
// null text is distinguishable from an empty one.
type payload struct {
	MessageID string  `json:"message_id" validate:"required"`
	From      string  `json:"from" validate:"required,msisdn"`
	To        string  `json:"to" validate:"required,msisdn"`
	Timestamp string  `json:"ts" validate:"required,utcstamp"`
	Text      *string `json:"text" validate:"required"`
}

// PayloadError describes why a body was rejected. It wraps ErrMalformedPayload.
type PayloadError struct {
	Reason string
}

func (e *PayloadError) Error() string { return "malformed payload: " + e.Reason }

func (e *PayloadError) Unwrap() error { return ErrMalformedPayload }

// ParsePayload decodes and validates a raw webhook body.
func ParsePayload(body []byte) (message.Message, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return message.Message{}, &PayloadError{Reason: jsonReason(err)}
	}

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			reasons := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				reasons = append(reasons, fieldReason(fe))
			}
			return message.Message{}, &PayloadError{Reason: strings.Join(reasons, "; ")}
		}
		return message.Message{}, &PayloadError{Reason: err.Error()}
	}

	ts, _ := parseUTCStamp(p.Timestamp)
	return message.Message{
		ID:        p.MessageID,
		From:      p.From,
		To:        p.To,
		Timestamp: ts,
		Text:      *p.Text,
	}, nil
}

// parseUTCStamp accepts RFC 3339 timestamps with an explicit Z suffix.
func parseUTCStamp(s string) (time.Time, error) {
	if !strings.HasSuffix(s, "Z") {
		return time.Time{}, fmt.Errorf("timestamp %q is not UTC", s)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func fieldReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "msisdn":
		return fe.Field() + " must be an E.164 number"
	case "utcstamp":
		return fe.Field() + " must be an RFC 3339 UTC timestamp ending in Z"
	default:
		return fe.Field() + " is invalid"
	}
}

func jsonReason(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return typeErr.Field + " has the wrong type"
	}
	return "body is not a JSON object"
}
