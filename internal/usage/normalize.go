package usage

import (
	"fmt"
)

// ParseErrorKind classifies normalization failures.
type ParseErrorKind int

const (
	ParseMissingField ParseErrorKind = iota
	ParseUnitMismatch
)

func (k ParseErrorKind) String() string {
	switch k {
	case ParseMissingField:
		return "missing field"
	case ParseUnitMismatch:
		return "unit mismatch"
	default:
		return fmt.Sprintf("parse error (%d)", int(k))
	}
}

// ParseError reports a tariff payload that could not be normalized.
type ParseError struct {
	Kind   ParseErrorKind
	Field  string
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Field)
}

// RawTariff is the decoded shape of the portal's tariff-info payload.
// Pointer fields keep an absent value distinguishable from a zero value;
// additive unknown fields in the payload are ignored by the decoder.
type RawTariff struct {
	MSISDN     string       `json:"msisdn"`
	TariffName string       `json:"tariffName"`
	CycleEnd   string       `json:"cycleEnd"`
	Data       *RawQuantity `json:"data"`
	Voice      *RawQuantity `json:"voice"`
	SMS        *RawQuantity `json:"sms"`
}

// RawQuantity is one metered block of the tariff payload. Unit applies to the
// data block only; voice is reported in minutes and SMS in messages.
type RawQuantity struct {
	Used      *int64 `json:"used"`
	Limit     *int64 `json:"limit"`
	Unit      string `json:"unit"`
	Unlimited bool   `json:"unlimited"`
}

// Byte multipliers for the units the portal is known to emit. Conversion is
// exact integer arithmetic so allowance comparisons never lose precision.
var unitBytes = map[string]int64{
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
}

// Normalize maps a raw tariff payload into the canonical UsageRecord.
// A missing "used" value is a parse failure, never a silent zero. A payload
// whose used exceeds its finite allowance is rejected as a unit mismatch:
// that shape indicates the fields were read in the wrong granularity.
func Normalize(raw RawTariff) (*UsageRecord, error) {
	if raw.CycleEnd == "" {
		return nil, &ParseError{Kind: ParseMissingField, Field: "cycleEnd"}
	}
	cycleEnd, err := ParseDate(raw.CycleEnd)
	if err != nil {
		return nil, &ParseError{Kind: ParseUnitMismatch, Field: "cycleEnd", Detail: raw.CycleEnd}
	}

	data, err := normalizeQuantity("data", raw.Data, true)
	if err != nil {
		return nil, err
	}
	voice, err := normalizeQuantity("voice", raw.Voice, false)
	if err != nil {
		return nil, err
	}
	sms, err := normalizeQuantity("sms", raw.SMS, false)
	if err != nil {
		return nil, err
	}

	return &UsageRecord{
		Tariff:   raw.TariffName,
		Data:     data,
		Voice:    voice,
		SMS:      sms,
		CycleEnd: cycleEnd,
	}, nil
}

func normalizeQuantity(field string, raw *RawQuantity, unitBearing bool) (Quantity, error) {
	if raw == nil {
		return Quantity{}, &ParseError{Kind: ParseMissingField, Field: field}
	}
	if raw.Used == nil {
		return Quantity{}, &ParseError{Kind: ParseMissingField, Field: field + ".used"}
	}

	multiplier := int64(1)
	if unitBearing {
		if raw.Unit == "" {
			return Quantity{}, &ParseError{Kind: ParseMissingField, Field: field + ".unit"}
		}
		m, ok := unitBytes[raw.Unit]
		if !ok {
			return Quantity{}, &ParseError{Kind: ParseUnitMismatch, Field: field + ".unit", Detail: raw.Unit}
		}
		multiplier = m
	} else if raw.Unit != "" {
		return Quantity{}, &ParseError{Kind: ParseUnitMismatch, Field: field + ".unit", Detail: raw.Unit}
	}

	if *raw.Used < 0 {
		return Quantity{}, &ParseError{Kind: ParseUnitMismatch, Field: field + ".used", Detail: "negative"}
	}
	used := *raw.Used * multiplier

	// Unlimited is signalled either by the explicit flag or a negative limit.
	if raw.Unlimited || (raw.Limit != nil && *raw.Limit < 0) {
		return Quantity{Used: used, Allowance: Unlimited}, nil
	}
	if raw.Limit == nil {
		return Quantity{}, &ParseError{Kind: ParseMissingField, Field: field + ".limit"}
	}
	allowance := *raw.Limit * multiplier

	if used > allowance {
		return Quantity{}, &ParseError{
			Kind:   ParseUnitMismatch,
			Field:  field,
			Detail: fmt.Sprintf("used %d exceeds allowance %d", used, allowance),
		}
	}

	return Quantity{Used: used, Allowance: allowance}, nil
}
