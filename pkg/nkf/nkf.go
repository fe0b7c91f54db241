// Package nkf generates and parses the 19-character fiscal document
// number (Number di Komprobante Fiskal) stamped on every receipt:
// source (1) + CRIB (9) + cash register (2) + document type (1) +
// sequential (6). Example: A122202235111000001.
package nkf

import (
	"fmt"
	"strings"
)

// DocumentType is the fiscal document class encoded in position 13.
type DocumentType int

const (
	InvoiceFinalConsumer    DocumentType = 1
	InvoiceFiscalCredit     DocumentType = 2
	CreditNoteFinalConsumer DocumentType = 3
	CreditNoteFiscalCredit  DocumentType = 4
)

func (t DocumentType) String() string {
	switch t {
	case InvoiceFinalConsumer:
		return "invoice (final consumer)"
	case InvoiceFiscalCredit:
		return "invoice (fiscal credit)"
	case CreditNoteFinalConsumer:
		return "credit note (final consumer)"
	case CreditNoteFiscalCredit:
		return "credit note (fiscal credit)"
	}
	return fmt.Sprintf("unknown document type %d", int(t))
}

// IsRefund reports whether the type is a credit note.
func (t DocumentType) IsRefund() bool {
	return t == CreditNoteFinalConsumer || t == CreditNoteFiscalCredit
}

// ResolveDocumentType maps the sale/refund flag and customer presence
// to the fiscal document class: a genuine customer identity upgrades
// the document to the fiscal-credit variant.
func ResolveDocumentType(isRefund, hasCustomer bool) DocumentType {
	if hasCustomer {
		if isRefund {
			return CreditNoteFiscalCredit
		}
		return InvoiceFiscalCredit
	}
	if isRefund {
		return CreditNoteFinalConsumer
	}
	return InvoiceFinalConsumer
}

// Identity is the configured fiscal identity of one cash register.
type Identity struct {
	Source       string `json:"source"`
	CRIB         string `json:"cribNumber"`
	CashRegister string `json:"cashRegister"`
}

// Parsed holds the components of a parsed NKF.
type Parsed struct {
	Source       string
	CRIB         string
	CashRegister string
	DocumentType DocumentType
	Sequential   int
}

const nkfLength = 19

// Generate builds an NKF. Components are clamped and zero-padded to
// their fixed widths, so the result is always exactly 19 characters.
func Generate(id Identity, docType DocumentType, sequential int) string {
	return clampUpper(id.Source, 1) +
		pad(id.CRIB, 9) +
		pad(id.CashRegister, 2) +
		fmt.Sprintf("%d", int(docType))[:1] +
		pad(fmt.Sprintf("%d", sequential), 6)
}

// Parse splits an NKF into its components. Input must be exactly 19
// characters.
func Parse(s string) (*Parsed, error) {
	if len(s) != nkfLength {
		return nil, fmt.Errorf("nkf: invalid length %d (expected %d)", len(s), nkfLength)
	}
	docType := int(s[12] - '0')
	var seq int
	if _, err := fmt.Sscanf(s[13:19], "%d", &seq); err != nil {
		return nil, fmt.Errorf("nkf: invalid sequential %q: %w", s[13:19], err)
	}
	return &Parsed{
		Source:       s[0:1],
		CRIB:         s[1:10],
		CashRegister: s[10:12],
		DocumentType: DocumentType(docType),
		Sequential:   seq,
	}, nil
}

// pad zero-pads s to width and truncates overlong input to the
// leftmost width characters.
func pad(s string, width int) string {
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s[:width]
}

func clampUpper(s string, width int) string {
	if s == "" {
		s = "A"
	}
	return strings.ToUpper(s[:width])
}
