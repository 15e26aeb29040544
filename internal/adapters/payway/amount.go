package payway

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// flexDecimal decodes amounts sent either as JSON numbers or strings.
// null and "" leave it unset.
type flexDecimal struct {
	decimal.Decimal
	Valid bool
}

func (f *flexDecimal) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("%w: %q", errBadAmount, b)
	}
	f.Decimal, f.Valid = d, true
	return nil
}

func (f flexDecimal) null() decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: f.Decimal, Valid: f.Valid}
}
