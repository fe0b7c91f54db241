package cts310

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Device date and time layouts.
const (
	dateLayout = "02012006" // DDMMYYYY
	timeLayout = "150405"   // HHMMSS
)

// FiscalInfo is the printer's registered fiscal identity and the ten
// configured tax rate slots, from command 0x26.
type FiscalInfo struct {
	CRIB         string
	BusinessName string
	PhoneNumber  string
	Address1     string
	Address2     string
	TaxRates     [10]float64
}

// HardwareStatus decodes the 32-bit status word from command 0x3F.
type HardwareStatus struct {
	Online              bool
	CoverOpen           bool
	TemperatureHigh     bool
	NonRecoverableError bool
	CutterError         bool
	BufferOverflow      bool
	EndOfPaper          bool
	OutOfPaper          bool
}

// PaperLow reports whether either paper sensor is tripped.
func (s HardwareStatus) PaperLow() bool {
	return s.EndOfPaper || s.OutOfPaper
}

// PrinterState is the device state machine snapshot from command 0x20.
type PrinterState struct {
	ResponseCode        string
	ResponseDescription string
	StateCode           string
	StateDescription    string
	FiscalStatus        string
}

// DocumentTotals is the 23-field reply to subtotal/total (0x42):
// exempt total, then per tax slot the taxable base and tax amount,
// then the document total and item count.
type DocumentTotals struct {
	TotalExempt   float64
	SaleByTax     [10]float64
	TaxByTax      [10]float64
	DocumentTotal float64
	ItemQuantity  float64
}

// decodeDateTime parses the 0x24 reply (date field, time field).
func decodeDateTime(r Response) (time.Time, error) {
	fields, err := r.Fields()
	if err != nil {
		return time.Time{}, err
	}
	if len(fields) < 2 {
		return time.Time{}, fmt.Errorf("datetime reply has %d fields, want 2", len(fields))
	}
	t, err := time.ParseInLocation(dateLayout+timeLayout, fields[0]+fields[1], time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode datetime: %w", err)
	}
	return t, nil
}

// decodeTaxRate converts a 4-digit device tax rate to a percentage:
// "0600" is 6.00%.
func decodeTaxRate(s string) (float64, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("tax rate %q is not 4 digits", s)
	}
	return strconv.ParseFloat(s[:2]+"."+s[2:], 64)
}

func decodeFiscalInfo(r Response) (*FiscalInfo, error) {
	fields, err := r.Fields()
	if err != nil {
		return nil, err
	}
	if len(fields) < 15 {
		return nil, fmt.Errorf("fiscal info reply has %d fields, want 15", len(fields))
	}
	info := &FiscalInfo{
		CRIB:         fields[0],
		BusinessName: fields[1],
		PhoneNumber:  fields[2],
		Address1:     fields[3],
		Address2:     fields[4],
	}
	for i := 0; i < 10; i++ {
		rate, err := decodeTaxRate(fields[5+i])
		if err != nil {
			return nil, fmt.Errorf("tax slot %d: %w", i+1, err)
		}
		info.TaxRates[i] = rate
	}
	return info, nil
}

// unconfiguredFields lists the identity fields the device reports as
// unset (values starting with "?").
func (i *FiscalInfo) unconfiguredFields() []string {
	var out []string
	for _, f := range []struct{ name, value string }{
		{"CRIB", i.CRIB},
		{"business name", i.BusinessName},
		{"phone number", i.PhoneNumber},
		{"address", i.Address1},
	} {
		if strings.HasPrefix(f.value, "?") {
			out = append(out, f.name)
		}
	}
	return out
}

func decodeHardwareStatus(r Response) (*HardwareStatus, error) {
	fields, err := r.Fields()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 || fields[0] == "" {
		return nil, fmt.Errorf("empty hardware status reply")
	}
	word, err := strconv.ParseUint(fields[0], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("decode hardware status %q: %w", fields[0], err)
	}
	// Bit 31 is the manual's bit 0 (most significant first).
	bit := func(n uint) bool { return word&(1<<(31-n)) != 0 }
	return &HardwareStatus{
		Online:              !bit(0),
		CoverOpen:           bit(1),
		TemperatureHigh:     bit(2),
		NonRecoverableError: bit(3),
		CutterError:         bit(4),
		BufferOverflow:      bit(5),
		EndOfPaper:          bit(6),
		OutOfPaper:          bit(7),
	}, nil
}

func decodePrinterState(r Response) (*PrinterState, error) {
	fields, err := r.Fields()
	if err != nil {
		return nil, err
	}
	if len(fields) < 3 {
		return nil, fmt.Errorf("printer state reply has %d fields, want 3", len(fields))
	}
	// The response code travels as decimal text but the manual's code
	// table is hexadecimal.
	code, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return nil, fmt.Errorf("decode response code %q: %w", fields[0], err)
	}
	responseCode := strings.ToUpper(fmt.Sprintf("%04x", code))
	stateCode := fields[1]
	state := &PrinterState{
		ResponseCode: responseCode,
		StateCode:    stateCode,
		FiscalStatus: fields[2],
	}
	state.ResponseDescription = ResponseCodes[responseCode]
	if state.ResponseDescription == "" {
		state.ResponseDescription = "unknown response code"
	}
	state.StateDescription = StateCodes[stateCode]
	if state.StateDescription == "" {
		state.StateDescription = "unknown state code"
	}
	return state, nil
}

// decodeDocumentNumber extracts the assigned document number from a
// prepare or no-sale close reply.
func decodeDocumentNumber(r Response) (string, error) {
	fields, err := r.Fields()
	if err != nil {
		return "", err
	}
	if len(fields) == 0 || fields[0] == "" {
		return "", fmt.Errorf("reply carries no document number")
	}
	return fields[0], nil
}

func decodeDocumentTotals(r Response) (*DocumentTotals, error) {
	fields, err := r.Fields()
	if err != nil {
		return nil, err
	}
	if len(fields) < 23 {
		return nil, fmt.Errorf("totals reply has %d fields, want 23", len(fields))
	}
	totals := &DocumentTotals{}
	if totals.TotalExempt, err = DecodeAmount(fields[0], 2); err != nil {
		return nil, fmt.Errorf("exempt total: %w", err)
	}
	for i := 0; i < 10; i++ {
		if totals.SaleByTax[i], err = DecodeAmount(fields[1+2*i], 2); err != nil {
			return nil, fmt.Errorf("tax %d sale total: %w", i+1, err)
		}
		if totals.TaxByTax[i], err = DecodeAmount(fields[2+2*i], 2); err != nil {
			return nil, fmt.Errorf("tax %d tax total: %w", i+1, err)
		}
	}
	if totals.DocumentTotal, err = DecodeAmount(fields[21], 2); err != nil {
		return nil, fmt.Errorf("document total: %w", err)
	}
	if totals.ItemQuantity, err = DecodeAmount(fields[22], 0); err != nil {
		return nil, fmt.Errorf("item quantity: %w", err)
	}
	return totals, nil
}
