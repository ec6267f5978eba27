package usage

import (
	"fmt"
	"strings"
	"time"
)

// Unlimited is the allowance sentinel for lines without a numeric cap.
// Unlimited quantities are excluded from numeric totals and tracked as a flag.
const Unlimited int64 = -1

// LineType distinguishes the account owner's line from additional family lines.
type LineType string

const (
	LinePrimary   LineType = "primary"
	LineSecondary LineType = "secondary"
)

// Line is one subscription line on the family plan. The set of lines is
// enumerated once per run and is immutable afterwards.
type Line struct {
	Number string   `json:"number"` // phone number as shown by the portal
	ID     string   `json:"id"`     // portal-internal line identifier
	Label  string   `json:"label"`
	Type   LineType `json:"type"`
}

// Quantity is a used/allowance pair for one metered resource.
// Allowance is Unlimited when the line has no numeric cap for the resource.
type Quantity struct {
	Used      int64 `json:"used"`
	Allowance int64 `json:"allowance"`
}

// IsUnlimited reports whether the quantity has no numeric cap.
func (q Quantity) IsUnlimited() bool {
	return q.Allowance == Unlimited
}

// Date is a calendar date without a time component, encoded as YYYY-MM-DD.
type Date struct {
	t time.Time
}

// NewDate returns the Date for the given calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

func (d Date) String() string {
	return d.t.Format("2006-01-02")
}

func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// MarshalJSON encodes the date as a YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UsageRecord is the normalized per-line usage snapshot.
// Invariants: all quantities are non-negative, and Used <= Allowance for every
// quantity whose allowance is not the Unlimited sentinel.
type UsageRecord struct {
	Tariff   string   `json:"tariff,omitempty"`
	Data     Quantity `json:"data"`  // bytes
	Voice    Quantity `json:"voice"` // minutes
	SMS      Quantity `json:"sms"`   // messages
	CycleEnd Date     `json:"cycle_end"`
}

// LineResult is the outcome of fetching and normalizing one line.
// Record is nil when the line could not be fetched or parsed; Err says why.
type LineResult struct {
	Line   Line
	Record *UsageRecord
	Raw    []byte // raw portal payload, for diagnostics and --save-raw
	Err    error
}

// Unavailable reports whether the line's usage could not be retrieved.
func (r LineResult) Unavailable() bool {
	return r.Record == nil
}

// Totals aggregates finite-allowance quantities across the family plan.
// Lines with an unlimited allowance for a resource are excluded from that
// resource's numeric sum and set the corresponding Unlimited flag instead.
type Totals struct {
	Data           Quantity `json:"data"`
	Voice          Quantity `json:"voice"`
	SMS            Quantity `json:"sms"`
	UnlimitedData  bool     `json:"unlimited_data"`
	UnlimitedVoice bool     `json:"unlimited_voice"`
	UnlimitedSMS   bool     `json:"unlimited_sms"`
	Lines          int      `json:"lines"`
	Unavailable    int      `json:"unavailable"`
}

// LineEntry is one row of a FamilyReport, in ListLines order.
type LineEntry struct {
	Line        Line         `json:"line"`
	Record      *UsageRecord `json:"record,omitempty"`
	Unavailable bool         `json:"unavailable"`
	Reason      string       `json:"reason,omitempty"`
}

// FamilyReport is the consolidated per-run view of the whole plan.
// Entries preserve the count and order of the enumerated lines, including
// lines that are marked unavailable.
type FamilyReport struct {
	Lines  []LineEntry `json:"lines"`
	Totals Totals      `json:"totals"`
}
