package usage

import (
	"errors"
	"testing"
)

func i64(v int64) *int64 { return &v }

func validRaw() RawTariff {
	return RawTariff{
		MSISDN:     "603111222",
		TariffName: "Family S",
		CycleEnd:   "2026-09-14",
		Data:       &RawQuantity{Used: i64(3541), Limit: i64(10240), Unit: "MB"},
		Voice:      &RawQuantity{Used: i64(123), Limit: i64(300)},
		SMS:        &RawQuantity{Used: i64(12), Limit: i64(100)},
	}
}

func TestNormalize_ExactUnitConversion(t *testing.T) {
	rec, err := Normalize(validRaw())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	wantUsed := int64(3541) * 1 << 20
	wantAllowance := int64(10240) * 1 << 20
	if rec.Data.Used != wantUsed {
		t.Errorf("Data.Used = %d, want %d", rec.Data.Used, wantUsed)
	}
	if rec.Data.Allowance != wantAllowance {
		t.Errorf("Data.Allowance = %d, want %d", rec.Data.Allowance, wantAllowance)
	}
	if rec.Voice.Used != 123 || rec.Voice.Allowance != 300 {
		t.Errorf("Voice = %+v, want 123/300", rec.Voice)
	}
	if rec.SMS.Used != 12 || rec.SMS.Allowance != 100 {
		t.Errorf("SMS = %+v, want 12/100", rec.SMS)
	}
	if rec.CycleEnd.String() != "2026-09-14" {
		t.Errorf("CycleEnd = %s, want 2026-09-14", rec.CycleEnd)
	}
	if rec.Tariff != "Family S" {
		t.Errorf("Tariff = %q, want Family S", rec.Tariff)
	}
}

func TestNormalize_GigabyteUnits(t *testing.T) {
	raw := validRaw()
	raw.Data = &RawQuantity{Used: i64(3), Limit: i64(10), Unit: "GB"}

	rec, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if rec.Data.Used != 3*(1<<30) {
		t.Errorf("Data.Used = %d, want %d", rec.Data.Used, int64(3)*(1<<30))
	}
}

func TestNormalize_UnlimitedDetection(t *testing.T) {
	tests := []struct {
		name string
		q    *RawQuantity
	}{
		{"explicit flag", &RawQuantity{Used: i64(55), Unlimited: true, Unit: "MB"}},
		{"negative limit", &RawQuantity{Used: i64(55), Limit: i64(-1), Unit: "MB"}},
		{"flag with limit present", &RawQuantity{Used: i64(55), Limit: i64(0), Unlimited: true, Unit: "MB"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			raw.Data = tt.q

			rec, err := Normalize(raw)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if !rec.Data.IsUnlimited() {
				t.Errorf("Data.Allowance = %d, want unlimited sentinel", rec.Data.Allowance)
			}
			if rec.Data.Used != 55*(1<<20) {
				t.Errorf("Data.Used = %d, usage on unlimited line must still convert", rec.Data.Used)
			}
		})
	}
}

func TestNormalize_Failures(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*RawTariff)
		wantKind  ParseErrorKind
		wantField string
	}{
		{
			name:      "missing used is not zero",
			mutate:    func(r *RawTariff) { r.Data.Used = nil },
			wantKind:  ParseMissingField,
			wantField: "data.used",
		},
		{
			name:      "missing data block",
			mutate:    func(r *RawTariff) { r.Data = nil },
			wantKind:  ParseMissingField,
			wantField: "data",
		},
		{
			name:      "missing data unit",
			mutate:    func(r *RawTariff) { r.Data.Unit = "" },
			wantKind:  ParseMissingField,
			wantField: "data.unit",
		},
		{
			name:      "unknown data unit",
			mutate:    func(r *RawTariff) { r.Data.Unit = "blocks" },
			wantKind:  ParseUnitMismatch,
			wantField: "data.unit",
		},
		{
			name:      "unit on voice block",
			mutate:    func(r *RawTariff) { r.Voice.Unit = "MB" },
			wantKind:  ParseUnitMismatch,
			wantField: "voice.unit",
		},
		{
			name:      "missing limit without unlimited flag",
			mutate:    func(r *RawTariff) { r.SMS.Limit = nil },
			wantKind:  ParseMissingField,
			wantField: "sms.limit",
		},
		{
			name:      "negative used",
			mutate:    func(r *RawTariff) { r.Voice.Used = i64(-5) },
			wantKind:  ParseUnitMismatch,
			wantField: "voice.used",
		},
		{
			name:      "used exceeds allowance",
			mutate:    func(r *RawTariff) { r.SMS.Used = i64(500) },
			wantKind:  ParseUnitMismatch,
			wantField: "sms",
		},
		{
			name:      "missing cycle end",
			mutate:    func(r *RawTariff) { r.CycleEnd = "" },
			wantKind:  ParseMissingField,
			wantField: "cycleEnd",
		},
		{
			name:      "malformed cycle end",
			mutate:    func(r *RawTariff) { r.CycleEnd = "14.9.2026" },
			wantKind:  ParseUnitMismatch,
			wantField: "cycleEnd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.mutate(&raw)

			_, err := Normalize(raw)
			if err == nil {
				t.Fatal("Normalize succeeded, want ParseError")
			}

			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("error type = %T, want *ParseError", err)
			}
			if perr.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", perr.Kind, tt.wantKind)
			}
			if perr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", perr.Field, tt.wantField)
			}
		})
	}
}
