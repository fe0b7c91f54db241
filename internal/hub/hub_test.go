package hub

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"printhub/internal/storage"
	"printhub/pkg/fiscal"
)

func newSequences(t *testing.T) *storage.SequenceStore {
	t.Helper()
	s, err := storage.NewSequenceStore(filepath.Join(t.TempDir(), "sequence.json"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPrintDocumentAssignsSequence(t *testing.T) {
	printer := fiscal.NewFakePrinter()
	h := New(printer, nil, newSequences(t))

	if _, err := h.PrintDocument(fiscal.PrintRequest{}); err != nil {
		t.Fatalf("PrintDocument() error: %v", err)
	}
	if _, err := h.PrintDocument(fiscal.PrintRequest{}); err != nil {
		t.Fatalf("PrintDocument() error: %v", err)
	}

	if len(printer.Documents) != 2 {
		t.Fatalf("printed %d documents, want 2", len(printer.Documents))
	}
	if printer.Documents[0].Sequential != 1 || printer.Documents[1].Sequential != 2 {
		t.Errorf("sequentials = %d,%d, want 1,2",
			printer.Documents[0].Sequential, printer.Documents[1].Sequential)
	}
}

func TestPrintDocumentKeepsCallerSequence(t *testing.T) {
	printer := fiscal.NewFakePrinter()
	seq := newSequences(t)
	h := New(printer, nil, seq)

	// A POS receipt number means the POS owns the numbering; the
	// counter must not move.
	if _, err := h.PrintDocument(fiscal.PrintRequest{ReceiptNumber: "INV-0042"}); err != nil {
		t.Fatalf("PrintDocument() error: %v", err)
	}
	if printer.Documents[0].Sequential != 0 {
		t.Errorf("Sequential = %d, want 0", printer.Documents[0].Sequential)
	}
	if seq.Next() != 1 {
		t.Errorf("counter moved to %d on a POS-numbered document", seq.Next())
	}
}

func TestPrintDocumentFailureReleasesSequence(t *testing.T) {
	printer := fiscal.NewFakePrinter()
	printer.Err = errors.New("rejected")
	seq := newSequences(t)
	h := New(printer, nil, seq)

	if _, err := h.PrintDocument(fiscal.PrintRequest{}); err == nil {
		t.Fatal("expected the printer error")
	}
	if seq.Next() != 1 {
		t.Errorf("failed print left counter at %d, want 1 (number released)", seq.Next())
	}

	// The retry reuses the released number.
	printer.Err = nil
	if _, err := h.PrintDocument(fiscal.PrintRequest{}); err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if printer.Documents[0].Sequential != 1 {
		t.Errorf("retry sequential = %d, want 1", printer.Documents[0].Sequential)
	}
}

func TestHubDelegates(t *testing.T) {
	printer := fiscal.NewFakePrinter()
	h := New(printer, nil, nil)

	if err := h.PrintXReport(); err != nil {
		t.Fatal(err)
	}
	if err := h.PrintZReport(true); err != nil {
		t.Fatal(err)
	}
	if err := h.ReprintDocument("55"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.GetStatus(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.PrintZReportsByDate(time.Now(), time.Now()); err != nil {
		t.Fatal(err)
	}

	want := []string{"x-report", "z-report close=true", "reprint 55", "status", "z-by-date"}
	if len(printer.Calls) != len(want) {
		t.Fatalf("calls = %v, want %v", printer.Calls, want)
	}
	for i, call := range want {
		if printer.Calls[i] != call {
			t.Errorf("call %d = %q, want %q", i, printer.Calls[i], call)
		}
	}
}

func TestExportWithoutGenerator(t *testing.T) {
	h := New(fiscal.NewFakePrinter(), nil, nil)
	if _, err := h.ExportDaily(time.Now()); !errors.Is(err, fiscal.ErrNoData) {
		t.Errorf("ExportDaily() error = %v, want ErrNoData", err)
	}
	if _, err := h.ExportMonthly(2025, time.December); !errors.Is(err, fiscal.ErrNoData) {
		t.Errorf("ExportMonthly() error = %v, want ErrNoData", err)
	}
}
