package fiscal

import (
	"errors"
	"time"
)

// ErrNoData is returned by report operations when the requested period
// or range holds nothing to print. It is a recoverable condition, not a
// device failure.
var ErrNoData = errors.New("fiscal: no data for the requested period")

// Printer is the capability interface every fiscal printer driver
// implements. One Printer instance owns one physical device; calls must
// be serialized by the owner (see internal/hub).
type Printer interface {
	Connect() error
	Disconnect() error
	Name() string

	// PrintDocument runs the full fiscal document lifecycle. On any
	// failure past the document open the driver cancels the document on
	// the device before returning.
	PrintDocument(req PrintRequest) (*PrintResult, error)

	// PrintXReport prints the non-closing snapshot report. ErrNoData
	// means the fiscal day holds nothing to report.
	PrintXReport() error

	// PrintZReport closes the fiscal day when closeDay is true, or
	// prints a copy of the pending totals without closing.
	PrintZReport(closeDay bool) error

	PrintZReportsByDate(start, end time.Time) (*ReportResult, error)
	PrintZReportByNumber(number int) error
	PrintZReportsByNumberRange(start, end int) (*ReportResult, error)

	// ReprintDocument reprints a stored document as a non-fiscal copy.
	ReprintDocument(documentNumber string) error

	// PrintNoSale opens the drawer with a non-fiscal document.
	PrintNoSale(reason string) error

	GetStatus() (*Status, error)
}
