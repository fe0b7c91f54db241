package fiscal

import (
	"fmt"
	"time"
)

// NewFakePrinter returns a Printer that records calls and succeeds at
// everything, for wiring tests of collaborators.
func NewFakePrinter() *FakePrinter {
	return &FakePrinter{}
}

// FakePrinter records every operation invoked on it. Err, when set, is
// returned by all operations.
type FakePrinter struct {
	Calls     []string
	Documents []PrintRequest
	Err       error

	nextDoc int
}

func (p *FakePrinter) record(call string) {
	p.Calls = append(p.Calls, call)
}

func (p *FakePrinter) Connect() error {
	p.record("connect")
	return p.Err
}

func (p *FakePrinter) Disconnect() error {
	p.record("disconnect")
	return p.Err
}

func (p *FakePrinter) Name() string {
	return "fake"
}

func (p *FakePrinter) PrintDocument(req PrintRequest) (*PrintResult, error) {
	p.record("print-document")
	if p.Err != nil {
		return nil, p.Err
	}
	p.Documents = append(p.Documents, req)
	p.nextDoc++
	return &PrintResult{DocumentNumber: fmt.Sprintf("%06d", p.nextDoc)}, nil
}

func (p *FakePrinter) PrintXReport() error {
	p.record("x-report")
	return p.Err
}

func (p *FakePrinter) PrintZReport(closeDay bool) error {
	p.record(fmt.Sprintf("z-report close=%t", closeDay))
	return p.Err
}

func (p *FakePrinter) PrintZReportsByDate(start, end time.Time) (*ReportResult, error) {
	p.record("z-by-date")
	if p.Err != nil {
		return nil, p.Err
	}
	return &ReportResult{Count: 1}, nil
}

func (p *FakePrinter) PrintZReportByNumber(number int) error {
	p.record(fmt.Sprintf("z-by-number %d", number))
	return p.Err
}

func (p *FakePrinter) PrintZReportsByNumberRange(start, end int) (*ReportResult, error) {
	p.record("z-by-number-range")
	if p.Err != nil {
		return nil, p.Err
	}
	return &ReportResult{Count: end - start + 1}, nil
}

func (p *FakePrinter) ReprintDocument(documentNumber string) error {
	p.record("reprint " + documentNumber)
	return p.Err
}

func (p *FakePrinter) PrintNoSale(reason string) error {
	p.record("no-sale")
	return p.Err
}

func (p *FakePrinter) GetStatus() (*Status, error) {
	p.record("status")
	if p.Err != nil {
		return nil, p.Err
	}
	return &Status{Connected: true, Online: true}, nil
}
