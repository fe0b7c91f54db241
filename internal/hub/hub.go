// Package hub serializes access to the single physical printer. The
// device has no concept of concurrent sessions: one document, report
// or audit read at a time, callers blocking in arrival order.
package hub

import (
	"sync"
	"time"

	"github.com/juju/loggo"

	"printhub/internal/salesbook"
	"printhub/internal/storage"
	"printhub/pkg/fiscal"
)

var log = loggo.GetLogger("hub")

// Hub owns the printer, the sales book generator and the sequence
// counter. Every operation holds the device lock for its full session,
// including the audit reads behind an export.
type Hub struct {
	mu        sync.Mutex
	printer   fiscal.Printer
	generator *salesbook.Generator
	sequences *storage.SequenceStore
}

// New wires the hub. generator may be nil when the sales book export
// is not configured.
func New(printer fiscal.Printer, generator *salesbook.Generator, sequences *storage.SequenceStore) *Hub {
	return &Hub{
		printer:   printer,
		generator: generator,
		sequences: sequences,
	}
}

// PrintDocument prints one fiscal document. Documents arriving without
// a POS receipt number get the next persisted sequence number; a
// cancelled print releases it so the retry reuses the same NKF.
func (h *Hub) PrintDocument(req fiscal.PrintRequest) (*fiscal.PrintResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	reserved := 0
	if req.Sequential == 0 && req.ReceiptNumber == "" && h.sequences != nil {
		n, err := h.sequences.Reserve()
		if err != nil {
			return nil, err
		}
		req.Sequential = n
		reserved = n
	}

	result, err := h.printer.PrintDocument(req)
	if err != nil {
		if reserved != 0 {
			h.sequences.Release(reserved)
		}
		return nil, err
	}
	return result, nil
}

func (h *Hub) PrintXReport() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.printer.PrintXReport()
}

func (h *Hub) PrintZReport(closeDay bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.printer.PrintZReport(closeDay)
}

func (h *Hub) PrintZReportsByDate(start, end time.Time) (*fiscal.ReportResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.printer.PrintZReportsByDate(start, end)
}

func (h *Hub) PrintZReportByNumber(number int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.printer.PrintZReportByNumber(number)
}

func (h *Hub) PrintZReportsByNumberRange(start, end int) (*fiscal.ReportResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.printer.PrintZReportsByNumberRange(start, end)
}

func (h *Hub) ReprintDocument(documentNumber string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.printer.ReprintDocument(documentNumber)
}

func (h *Hub) PrintNoSale(reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.printer.PrintNoSale(reason)
}

func (h *Hub) GetStatus() (*fiscal.Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.printer.GetStatus()
}

// ExportDaily generates the day's sales book. The device lock is held
// across the whole audit read, the printer cannot print meanwhile.
func (h *Hub) ExportDaily(date time.Time) (string, error) {
	if h.generator == nil {
		return "", fiscal.ErrNoData
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	log.Infof("daily export started for %s", date.Format("2006-01-02"))
	return h.generator.GenerateDaily(date)
}

// ExportMonthly generates the month's sales book under the device
// lock.
func (h *Hub) ExportMonthly(year int, month time.Month) (string, error) {
	if h.generator == nil {
		return "", fiscal.ErrNoData
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	log.Infof("monthly export started for %d-%02d", year, int(month))
	return h.generator.GenerateMonthly(year, month)
}
