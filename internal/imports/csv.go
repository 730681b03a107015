package imports

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// headerAliases maps accepted spreadsheet column names onto Record fields.
var headerAliases = map[string]string{
	"customer_id":          "customer_id",
	"id":                   "customer_id",
	"customer":             "customer_id",
	"email":                "email",
	"customer_email":       "email",
	"name":                 "name",
	"customer_name":        "name",
	"subscription_id":      "subscription_id",
	"plan":                 "plan",
	"plan_name":            "plan",
	"status":               "status",
	"amount":               "amount",
	"mrr":                  "amount",
	"currency":             "currency",
	"interval":             "interval",
	"billing_interval":     "interval",
	"started_at":           "started_at",
	"start_date":           "started_at",
	"current_period_end":   "current_period_end",
	"renewal_date":         "current_period_end",
	"cancel_at_period_end": "cancel_at_period_end",
	"canceled_at":          "canceled_at",
	"cancelled_at":         "canceled_at",
}

// csvSource streams Records from a CSV document with a header row.
type csvSource struct {
	reader  *csv.Reader
	columns map[string]int
	line    int
}

func newCSVSource(r io.Reader) (*csvSource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, raw := range header {
		field, ok := headerAliases[normalizeHeader(raw)]
		if !ok {
			continue
		}
		if _, dup := columns[field]; !dup {
			columns[field] = i
		}
	}
	if _, ok := columns["customer_id"]; !ok {
		return nil, fmt.Errorf("csv header must include a customer_id column")
	}
	return &csvSource{reader: reader, columns: columns, line: 1}, nil
}

// Next returns the next record, or io.EOF once the document is exhausted.
func (s *csvSource) Next() (Record, error) {
	row, err := s.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("read csv: %w", err)
	}
	line, _ := s.reader.FieldPos(0)
	s.line = line

	get := func(field string) string {
		idx, ok := s.columns[field]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}
	return Record{
		Line:              s.line,
		CustomerID:        get("customer_id"),
		Email:             get("email"),
		Name:              get("name"),
		SubscriptionID:    get("subscription_id"),
		Plan:              get("plan"),
		Status:            get("status"),
		Amount:            get("amount"),
		Currency:          get("currency"),
		Interval:          get("interval"),
		StartedAt:         get("started_at"),
		CurrentPeriodEnd:  get("current_period_end"),
		CancelAtPeriodEnd: get("cancel_at_period_end"),
		CanceledAt:        get("canceled_at"),
	}, nil
}

func normalizeHeader(raw string) string {
	h := strings.TrimPrefix(raw, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}
