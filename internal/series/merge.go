package series

import (
	"fmt"

	"github.com/nestorwheelock/diveops/internal/model"
)

// Canonical field names used in override_fields keys and template change
// requests.
const (
	FieldDurationMin   = "duration_min"
	FieldCapacity      = "capacity"
	FieldPriceCents    = "price_cents"
	FieldCurrency      = "currency"
	FieldDiveSite      = "dive_site"
	FieldExcursionType = "excursion_type"
	FieldMeetingPoint  = "meeting_point"
	FieldNotes         = "notes"
)

// mergeTemplate refreshes template-sourced fields from tpl while keeping the
// current value of every field named in overridden. Unknown keys are ignored
// so a stale override key never blocks a refresh.
func mergeTemplate(current, tpl model.Template, overridden model.FieldMap) model.Template {
	out := tpl
	for k := range overridden {
		switch k {
		case FieldDurationMin:
			out.DurationMin = current.DurationMin
		case FieldCapacity:
			out.Capacity = current.Capacity
		case FieldPriceCents:
			out.PriceCents = current.PriceCents
		case FieldCurrency:
			out.Currency = current.Currency
		case FieldDiveSite:
			out.DiveSite = current.DiveSite
		case FieldExcursionType:
			out.ExcursionType = current.ExcursionType
		case FieldMeetingPoint:
			out.MeetingPoint = current.MeetingPoint
		case FieldNotes:
			out.Notes = current.Notes
		}
	}
	return out
}

// applyChanges writes a sparse change set onto a template. Numeric values
// arrive as float64 when decoded from JSON.
func applyChanges(t model.Template, changes model.FieldMap) (model.Template, error) {
	for k, v := range changes {
		switch k {
		case FieldDurationMin, FieldCapacity, FieldPriceCents:
			n, err := toInt(v)
			if err != nil {
				return t, fmt.Errorf("field %s: %w", k, err)
			}
			switch k {
			case FieldDurationMin:
				t.DurationMin = n
			case FieldCapacity:
				t.Capacity = n
			case FieldPriceCents:
				t.PriceCents = n
			}
		case FieldCurrency, FieldDiveSite, FieldExcursionType, FieldMeetingPoint, FieldNotes:
			s, ok := v.(string)
			if !ok {
				return t, fmt.Errorf("field %s: expected string, got %T", k, v)
			}
			switch k {
			case FieldCurrency:
				t.Currency = s
			case FieldDiveSite:
				t.DiveSite = s
			case FieldExcursionType:
				t.ExcursionType = s
			case FieldMeetingPoint:
				t.MeetingPoint = s
			case FieldNotes:
				t.Notes = s
			}
		default:
			return t, fmt.Errorf("unknown template field %q", k)
		}
	}
	return t, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
