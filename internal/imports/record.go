package imports

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

var statusAliases = map[string]string{
	"cancelled": string(enums.SubscriptionStatusCanceled),
	"trial":     string(enums.SubscriptionStatusTrialing),
	"pastdue":   string(enums.SubscriptionStatusPastDue),
}

// Record is one customer row, optionally with its subscription, as read from
// an import source. Fields hold raw text until validated.
type Record struct {
	Line              int    `json:"-"`
	CustomerID        string `json:"customer_id" validate:"required,max=255"`
	Email             string `json:"email" validate:"omitempty,email,max=320"`
	Name              string `json:"name" validate:"max=255"`
	SubscriptionID    string `json:"subscription_id" validate:"max=255"`
	Plan              string `json:"plan" validate:"max=100"`
	Status            string `json:"status" validate:"required_with=SubscriptionID,omitempty,subscription_status"`
	Amount            string `json:"amount" validate:"omitempty,numeric"`
	Currency          string `json:"currency" validate:"omitempty,len=3,alpha"`
	Interval          string `json:"interval" validate:"omitempty,billing_interval"`
	StartedAt         string `json:"started_at" validate:"omitempty,timestamp"`
	CurrentPeriodEnd  string `json:"current_period_end" validate:"omitempty,timestamp"`
	CancelAtPeriodEnd string `json:"cancel_at_period_end" validate:"omitempty,boolean"`
	CanceledAt        string `json:"canceled_at" validate:"omitempty,timestamp"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("subscription_status", func(fl validator.FieldLevel) bool {
		_, err := enums.ParseSubscriptionStatus(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("billing_interval", func(fl validator.FieldLevel) bool {
		_, err := enums.ParseBillingInterval(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("timestamp", func(fl validator.FieldLevel) bool {
		_, err := parseTimestamp(fl.Field().String())
		return err == nil
	})
	return v
}

// normalize trims values and folds common spellings before validation.
func (r *Record) normalize() {
	r.CustomerID = strings.TrimSpace(r.CustomerID)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Name = strings.TrimSpace(r.Name)
	r.SubscriptionID = strings.TrimSpace(r.SubscriptionID)
	r.Plan = strings.TrimSpace(r.Plan)
	status := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(r.Status), " ", "_"))
	if alias, ok := statusAliases[status]; ok {
		status = alias
	}
	r.Status = status
	r.Amount = strings.NewReplacer("$", "", ",", "", " ", "").Replace(r.Amount)
	r.Currency = strings.ToLower(strings.TrimSpace(r.Currency))
	r.Interval = strings.TrimSpace(r.Interval)
	r.StartedAt = strings.TrimSpace(r.StartedAt)
	r.CurrentPeriodEnd = strings.TrimSpace(r.CurrentPeriodEnd)
	r.CancelAtPeriodEnd = strings.ToLower(strings.TrimSpace(r.CancelAtPeriodEnd))
	r.CanceledAt = strings.TrimSpace(r.CanceledAt)
}

// Validate normalizes the record and checks it, returning a message fit to
// show the tenant.
func (r *Record) Validate() error {
	r.normalize()
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		return fmt.Errorf("line %d: %s %s", r.Line, fe.Field(), validationMessage(fe))
	}
	return fmt.Errorf("line %d: %w", r.Line, err)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return "is required when subscription_id is set"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		return "must be a valid email"
	case "numeric":
		return "must be a number"
	case "len", "alpha":
		return "must be a 3-letter currency code"
	case "boolean":
		return "must be true or false"
	case "timestamp":
		return "must be a date (YYYY-MM-DD) or RFC3339 timestamp"
	case "subscription_status":
		return "is not a known subscription status"
	case "billing_interval":
		return "must be day, week, month or year"
	}
	return "is invalid"
}

// toModels converts a validated record into rows for userID.
func (r Record) toModels(userID uuid.UUID, source enums.ImportSource) (models.Customer, *models.CustomerSubscription, error) {
	customer := models.Customer{
		UserID:     userID,
		ProviderID: r.CustomerID,
		Email:      optional(r.Email),
		Name:       optional(r.Name),
		Source:     source,
	}
	if r.SubscriptionID == "" {
		return customer, nil, nil
	}

	status, err := enums.ParseSubscriptionStatus(r.Status)
	if err != nil {
		return customer, nil, err
	}
	amount := decimal.Zero
	if r.Amount != "" {
		if amount, err = decimal.NewFromString(r.Amount); err != nil {
			return customer, nil, err
		}
	}
	currency := r.Currency
	if currency == "" {
		currency = "usd"
	}
	sub := &models.CustomerSubscription{
		UserID:             userID,
		ProviderID:         r.SubscriptionID,
		CustomerProviderID: r.CustomerID,
		PlanName:           optional(r.Plan),
		Status:             status,
		Amount:             amount,
		Currency:           currency,
		Source:             source,
	}
	if r.Interval != "" {
		interval, err := enums.ParseBillingInterval(r.Interval)
		if err != nil {
			return customer, nil, err
		}
		sub.BillingInterval = &interval
	}
	if sub.StartedAt, err = optionalTimestamp(r.StartedAt); err != nil {
		return customer, nil, err
	}
	if sub.CurrentPeriodEnd, err = optionalTimestamp(r.CurrentPeriodEnd); err != nil {
		return customer, nil, err
	}
	if sub.CanceledAt, err = optionalTimestamp(r.CanceledAt); err != nil {
		return customer, nil, err
	}
	if r.CancelAtPeriodEnd != "" {
		if sub.CancelAtPeriodEnd, err = strconv.ParseBool(r.CancelAtPeriodEnd); err != nil {
			return customer, nil, err
		}
	}
	return customer, sub, nil
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func optionalTimestamp(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseTimestamp(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
