package pool

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	"github.com/tinywideclouds/go-keypool-service/internal/metrics"
	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

// ErrInvalidInput indicates operator input failed validation.
var ErrInvalidInput = errors.New("invalid input")

var (
	// names double as chat button labels and URL path segments
	keyNameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

var (
	nameRules = []validation.Rule{
		validation.Required.Error("name is required"),
		validation.Length(1, 64).Error("name must be between 1 and 64 characters"),
		validation.Match(keyNameRegex).Error("name may only contain letters, digits, '_' and '-'"),
	}
	valueRules = []validation.Rule{
		validation.Required.Error("value is required"),
		notBlank,
		validation.Length(1, 4096).Error("value must be at most 4096 characters"),
	}
	emailRules = []validation.Rule{
		validation.Length(0, 255).Error("email must be at most 255 characters"),
		email,
	}
)

var notBlank = validation.NewStringRuleWithError(
	func(s string) bool { return strings.TrimSpace(s) != "" },
	validation.NewError("validation_not_blank", "must not be blank"),
)

var email = validation.NewStringRuleWithError(
	func(s string) bool { return emailRegex.MatchString(s) },
	validation.NewError("validation_email_format", "must be a valid email address"),
)

// AddKeyInput is the operator-supplied data for a new key.
type AddKeyInput struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// Validate checks every field of the input.
func (in *AddKeyInput) Validate() error {
	err := validation.ValidateStruct(in,
		validation.Field(&in.Name, nameRules...),
		validation.Field(&in.Value, valueRules...),
		validation.Field(&in.Email, emailRules...),
		validation.Field(&in.Password, validation.Length(0, 255).Error("password must be at most 255 characters")),
	)
	return wrapValidationError(err)
}

// Record converts the input into a record in its creation state.
func (in *AddKeyInput) Record() keypool.KeyRecord {
	var opts []keypool.RecordOption
	if in.Email != "" {
		opts = append(opts, keypool.WithEmail(in.Email))
	}
	if in.Password != "" {
		opts = append(opts, keypool.WithPassword(in.Password))
	}
	return keypool.NewKeyRecord(in.Name, in.Value, opts...)
}

// ValidateName checks a single key name.
func ValidateName(name string) error {
	return wrapValidationError(validation.Validate(name, nameRules...))
}

// ValidateValue checks a single key value.
func ValidateValue(value string) error {
	return wrapValidationError(validation.Validate(value, valueRules...))
}

// ValidateEmail checks a single account email. Empty is allowed.
func ValidateEmail(address string) error {
	return wrapValidationError(validation.Validate(address, emailRules...))
}

func wrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
}

// AddKey validates in and appends the resulting record.
func (s *Service) AddKey(ctx context.Context, in AddKeyInput) (keypool.KeyRecord, error) {
	if err := in.Validate(); err != nil {
		s.metrics.RecordOperation("add", metrics.OutcomeRejected)
		return keypool.KeyRecord{}, err
	}
	return s.Add(ctx, in.Record())
}
