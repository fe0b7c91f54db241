package cts310

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Control bytes of the CTS310ii serial protocol.
const (
	STX byte = 0x02 // start of transmission
	ETX byte = 0x03 // end of transmission
	ACK byte = 0x06 // positive answer
	BEL byte = 0x07 // intermediate response
	NAK byte = 0x15 // negative answer
	FS  byte = 0x1C // field separator
)

// Command opcodes. One byte each, sent right after STX.
const (
	cmdPrinterState   byte = 0x20
	cmdIdentify       byte = 0x21
	cmdSetDateTime    byte = 0x23
	cmdGetDateTime    byte = 0x24
	cmdFiscalInfo     byte = 0x26
	cmdHardwareStatus byte = 0x3F

	cmdPrepare           byte = 0x40
	cmdAddItem           byte = 0x41
	cmdSubOrTotal        byte = 0x42
	cmdDiscountSurcharge byte = 0x43
	cmdPayment           byte = 0x44
	cmdCloseDocument     byte = 0x45
	cmdCancelDocument    byte = 0x46
	cmdAddComment        byte = 0x4A

	cmdNoSaleOpen  byte = 0x60
	cmdNoSaleLine  byte = 0x61
	cmdNoSaleClose byte = 0x62

	cmdZReport         byte = 0x70
	cmdXReport         byte = 0x71
	cmdZReportByDate   byte = 0x74
	cmdZReportByNumber byte = 0x75
	cmdZReportNext     byte = 0x76
	cmdZReportEnd      byte = 0x77

	cmdAuditZInit   byte = 0xA1
	cmdAuditZNext   byte = 0xA2
	cmdAuditTxnInit byte = 0xA4
	cmdAuditTxnNext byte = 0xA5
	cmdAuditEnd     byte = 0xA7
	cmdReprint      byte = 0xA8
)

// TaxIDs maps a VAT percentage (as the POS reports it) to the printer's
// configured tax rate slot.
var TaxIDs = map[string]string{
	"6": "1",
	"7": "2",
	"9": "3",
}

// Payment methods accepted by command 0x44.
var PaymentMethods = map[string]string{
	"cash":        "00",
	"check":       "01",
	"credit_card": "02",
	"debit_card":  "03",
	"credit_note": "04",
	"coupon":      "05",
	"other_1":     "06",
	"other_2":     "07",
	"other_3":     "08",
	"other_4":     "09",
	"donations":   "10",
}

// Adjustment types for command 0x43.
const (
	AdjustmentDiscount      = "0"
	AdjustmentSurcharge     = "1"
	AdjustmentServiceCharge = "2"
)

// ResponseCodes translates the device's 4-hex-digit response codes into
// human readable text, per the protocol manual.
var ResponseCodes = map[string]string{
	"0000": "Last command successful.",
	"0101": "Command invalid in the current state.",
	"0102": "Command invalid in the current document.",
	"0103": "Service jumper connected.",
	"0105": "Command requires service jumper.",
	"0107": "Invalid command.",
	"0108": "Command invalid through USB port.",
	"0109": "Command missing mandatory field.",
	"0110": "Invalid field length.",
	"0111": "Field value is invalid or out of range.",
	"0112": "Inactive TAX rate.",
	"0202": "Printing device out of line.",
	"0204": "Printing device out of paper.",
	"0205": "Invalid speed.",
	"0301": "Set fiscal info error.",
	"0302": "Set date error.",
	"0303": "Invalid date.",
	"0402": "CRIB cannot be modified.",
	"0501": "Transaction memory full.",
	"0503": "Transaction memory not connected.",
	"0504": "Read/Write error on transaction memory.",
	"0505": "Invalid transaction memory.",
	"0601": "Command invalid outside of fiscal period.",
	"0602": "Fiscal period not started.",
	"0603": "Fiscal memory full.",
	"0604": "Fiscal memory not connected.",
	"0605": "Invalid fiscal memory.",
	"0606": "Command requires a Z report.",
	"0607": "Cannot find document.",
	"0608": "Fiscal period empty.",
	"0609": "Requested period empty.",
	"060A": "No more data is available.",
	"060B": "No more Z reports can be printed this day.",
	"060C": "Z report could not be saved.",
	"0701": "Total must be greater than zero.",
	"0801": "Reached comment line number limit.",
	"0901": "Reached no sale document line number limit.",
	"FFF0": "Checksum error in set fiscal info command.",
	"FFF1": "Missing checksum in set fiscal info command.",
	"FFFF": "Unknown error.",
}

// StateCodes translates the device's state machine codes.
var StateCodes = map[string]string{
	"0":  "Standby",
	"1":  "Start of sale",
	"2":  "Sale",
	"3":  "Subtotal",
	"4":  "Payment",
	"5":  "End of sale",
	"6":  "Non Fiscal",
	"7":  "Reserved",
	"8":  "Error",
	"9":  "Start of return",
	"10": "Return",
	"11": "Reading fiscal info",
	"12": "Storing logo",
	"13": "Read only",
}

// Frame is a single command frame: STX, opcode, zero or more FS-prefixed
// text fields, ETX. Fields travel as device code page bytes; an empty
// field is a bare separator.
type Frame struct {
	Opcode byte
	Fields []string
}

// NewFrame builds a frame for the given opcode and payload fields.
func NewFrame(opcode byte, fields ...string) Frame {
	return Frame{Opcode: opcode, Fields: fields}
}

// Bytes serializes the frame for the wire.
func (f Frame) Bytes() []byte {
	buf := make([]byte, 0, 4+len(f.Fields)*16)
	buf = append(buf, STX, f.Opcode)
	for _, field := range f.Fields {
		buf = append(buf, FS)
		buf = append(buf, encodeText(field)...)
	}
	return append(buf, ETX)
}

// Hex returns the frame as a lowercase hex string, the form used in
// protocol traces.
func (f Frame) Hex() string {
	return hex.EncodeToString(f.Bytes())
}

// Verdict classifies a device response.
type Verdict int

const (
	// NoResponse means the device sent nothing (or nothing complete)
	// before the timeout.
	NoResponse Verdict = iota
	// Success covers STX|BEL ... ETX ACK frames and bare ACKs.
	Success
	// Rejected covers responses terminated by NAK.
	Rejected
)

func (v Verdict) String() string {
	switch v {
	case Success:
		return "success"
	case Rejected:
		return "rejected"
	default:
		return "no response"
	}
}

// Response is the raw byte sequence read back for one command.
type Response []byte

// Classify applies the protocol's terminator rules. A response that
// carries neither terminator is an incomplete read and counts as
// NoResponse.
func (r Response) Classify() Verdict {
	if len(r) == 0 {
		return NoResponse
	}
	switch r[len(r)-1] {
	case NAK:
		return Rejected
	case ACK:
		// Framed success (STX|BEL ... ETX ACK) or a bare ACK; a
		// trailing ACK without full framing still acknowledges.
		return Success
	default:
		return NoResponse
	}
}

// IsSuccess reports whether the response classifies as Success.
func (r Response) IsSuccess() bool {
	return r.Classify() == Success
}

// minFrameLen is the shortest decodable framed response:
// STX + one payload byte + ETX + ACK would be 4, but a frame with an
// empty payload (STX ETX ACK) still strips cleanly, so 3 bytes.
const minFrameLen = 3

// Fields strips the framing (STX prefix, ETX+ACK suffix) and splits the
// payload on FS, decoding every field from the device code page.
func (r Response) Fields() ([]string, error) {
	if len(r) < minFrameLen {
		return nil, fmt.Errorf("response too short to decode: % X", []byte(r))
	}
	payload := r[1 : len(r)-2]
	parts := split(payload, FS)
	fields := make([]string, len(parts))
	for i, p := range parts {
		fields[i] = decodeText(p)
	}
	return fields, nil
}

// HasSeparator reports whether the framed payload carries at least one
// field separator. Audit replies without one are single-field
// (error-code-only) records.
func (r Response) HasSeparator() bool {
	if len(r) < minFrameLen {
		return false
	}
	for _, b := range r[1 : len(r)-2] {
		if b == FS {
			return true
		}
	}
	return false
}

// Hex returns the response as a lowercase hex string for traces.
func (r Response) Hex() string {
	return hex.EncodeToString(r)
}

func split(data []byte, sep byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == sep {
			out = append(out, data[start:i])
			start = i + 1
		}
	}
	return append(out, data[start:])
}

// EncodeHex converts a text payload to its ASCII hex representation.
// Pure and total for any input.
func EncodeHex(s string) string {
	return hex.EncodeToString([]byte(s))
}

// DecodeHex converts an ASCII hex payload back to text. Odd-length or
// non-hex input is a caller error and is rejected before anything
// touches the wire.
func DecodeHex(s string) (string, error) {
	if len(s)%2 != 0 {
		return "", fmt.Errorf("odd-length hex payload (%d chars)", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("malformed hex payload: %w", err)
	}
	return string(b), nil
}

// EncodeAmount formats a numeric value with the given number of implied
// decimal places, the device's fixed-point convention: 1.55 with two
// decimals becomes "155".
func EncodeAmount(v float64, decimals int) string {
	s := fmt.Sprintf("%.*f", decimals, v)
	return strings.Replace(s, ".", "", 1)
}

// DecodeAmount parses a fixed-point device number back to a float:
// "8000" with two implied decimals is 80.00.
func DecodeAmount(s string, decimals int) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a device number: %q", s)
		}
	}
	for len(s) <= decimals {
		s = "0" + s
	}
	cut := len(s) - decimals
	var v float64
	if _, err := fmt.Sscanf(s[:cut]+"."+s[cut:], "%f", &v); err != nil {
		return 0, fmt.Errorf("not a device number: %q", s)
	}
	if neg {
		v = -v
	}
	return v, nil
}
