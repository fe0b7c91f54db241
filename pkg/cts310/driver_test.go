package cts310

import (
	"errors"
	"testing"
	"time"

	"printhub/pkg/fiscal"
	"printhub/pkg/nkf"
)

// fakeTransport replays scripted responses per opcode. Opcodes without
// a script get a bare acknowledgement, so tests only script the
// exchanges they care about.
type fakeTransport struct {
	queues map[byte][]Response
	sent   []Frame
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{queues: make(map[byte][]Response)}
}

func (ft *fakeTransport) script(opcode byte, responses ...Response) {
	ft.queues[opcode] = append(ft.queues[opcode], responses...)
}

func (ft *fakeTransport) Send(f Frame) (Response, error) {
	ft.sent = append(ft.sent, f)
	if q := ft.queues[f.Opcode]; len(q) > 0 {
		ft.queues[f.Opcode] = q[1:]
		return q[0], nil
	}
	return okReply(), nil
}

func (ft *fakeTransport) Close() error {
	ft.closed = true
	return nil
}

func (ft *fakeTransport) frames(opcode byte) []Frame {
	var out []Frame
	for _, f := range ft.sent {
		if f.Opcode == opcode {
			out = append(out, f)
		}
	}
	return out
}

// cancelsAfterPrepare counts cancel frames sent after the prepare
// command. The pre-print cleanup cancel always precedes prepare and is
// not part of the failure path.
func (ft *fakeTransport) cancelsAfterPrepare() int {
	prepared := false
	n := 0
	for _, f := range ft.sent {
		switch f.Opcode {
		case cmdPrepare:
			prepared = true
		case cmdCancelDocument:
			if prepared {
				n++
			}
		}
	}
	return n
}

// okReply builds a device acknowledgement carrying the given payload
// fields.
func okReply(fields ...string) Response {
	r := Response{STX}
	for i, field := range fields {
		if i > 0 {
			r = append(r, FS)
		}
		r = append(r, encodeText(field)...)
	}
	return append(r, ETX, ACK)
}

func nakReply() Response { return Response{NAK} }

// totalsReply builds a decodable subtotal/total reply: exempt total,
// ten sale/tax pairs, the document total and the item count.
func totalsReply() Response {
	fields := make([]string, 23)
	for i := range fields {
		fields[i] = "000"
	}
	fields[21] = "1225"
	fields[22] = "3"
	return okReply(fields...)
}

// documentTransport scripts the replies every document exchange needs:
// a prepare carrying a document number plus decodable subtotal and
// total replies.
func documentTransport() *fakeTransport {
	ft := newFakeTransport()
	ft.script(cmdPrepare, okReply("123"))
	ft.script(cmdSubOrTotal, totalsReply(), totalsReply())
	return ft
}

func testDriver(ft *fakeTransport) *Driver {
	d := NewDriver(Config{
		Identity: nkf.Identity{Source: "A", CRIB: "122202235", CashRegister: "01"},
	}, ft)
	d.connected = true
	return d
}

func TestConnect(t *testing.T) {
	now := time.Now()
	ft := newFakeTransport()
	ft.script(cmdGetDateTime, okReply(now.Format(dateLayout), now.Format(timeLayout)))

	d := NewDriver(Config{}, ft)
	if err := d.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if frames := ft.frames(cmdSetDateTime); len(frames) != 0 {
		t.Errorf("clock within drift window should not be set, got %d set commands", len(frames))
	}
}

func TestConnectSynchronizesDriftedClock(t *testing.T) {
	stale := time.Now().Add(-3 * time.Hour)
	ft := newFakeTransport()
	ft.script(cmdGetDateTime, okReply(stale.Format(dateLayout), stale.Format(timeLayout)))

	d := NewDriver(Config{}, ft)
	if err := d.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if frames := ft.frames(cmdSetDateTime); len(frames) != 1 {
		t.Errorf("drifted clock should trigger exactly one set command, got %d", len(frames))
	}
}

func TestConnectFailsWithoutDevice(t *testing.T) {
	ft := newFakeTransport()
	ft.script(cmdIdentify, Response{})

	d := NewDriver(Config{}, ft)
	if err := d.Connect(); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Connect() error = %v, want ErrNoResponse", err)
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	d := NewDriver(Config{}, newFakeTransport())
	if _, err := d.PrintDocument(fiscal.PrintRequest{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PrintDocument: got %v", err)
	}
	if err := d.PrintXReport(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PrintXReport: got %v", err)
	}
	if err := d.PrintZReport(true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PrintZReport: got %v", err)
	}
	if err := d.ReprintDocument("1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ReprintDocument: got %v", err)
	}
}

func saleRequest() fiscal.PrintRequest {
	return fiscal.PrintRequest{
		ReceiptNumber: "INV-0042",
		Items: []fiscal.Item{
			{Description: "Cheeseburger", Quantity: 2, UnitPrice: 5.50, Unit: "u", VATPercent: 6},
			{Description: "Cola", Quantity: 1, UnitPrice: 1.25, Unit: "u", VATPercent: 9},
		},
		Payments: []fiscal.Payment{{Method: PaymentMethods["cash"], Amount: 12.25}},
	}
}

func TestPrintDocumentSequence(t *testing.T) {
	ft := documentTransport()

	result, err := testDriver(ft).PrintDocument(saleRequest())
	if err != nil {
		t.Fatalf("PrintDocument() error: %v", err)
	}
	if result.DocumentNumber != "123" {
		t.Errorf("DocumentNumber = %q, want %q", result.DocumentNumber, "123")
	}
	if result.DocumentType != 1 {
		t.Errorf("DocumentType = %d, want 1", result.DocumentType)
	}
	if want := "A122202235011000042"; result.NKF != want {
		t.Errorf("NKF = %q, want %q", result.NKF, want)
	}

	// The document lifecycle must open with a cleanup cancel and a
	// prepare, and finish with a close; nothing may cancel in between.
	if ft.sent[0].Opcode != cmdCancelDocument || ft.sent[1].Opcode != cmdPrepare {
		t.Errorf("sequence should open cancel,prepare; got %02x,%02x",
			ft.sent[0].Opcode, ft.sent[1].Opcode)
	}
	if last := ft.sent[len(ft.sent)-1]; last.Opcode != cmdCloseDocument {
		t.Errorf("last frame opcode = %02x, want close", last.Opcode)
	}
	if n := ft.cancelsAfterPrepare(); n != 0 {
		t.Errorf("successful document sent %d cancels after prepare, want 0", n)
	}

	if items := ft.frames(cmdAddItem); len(items) != 2 {
		t.Fatalf("sent %d item frames, want 2", len(items))
	} else {
		if items[0].Fields[5] != "2000" {
			t.Errorf("quantity field = %q, want 2000", items[0].Fields[5])
		}
		if items[0].Fields[6] != "550" {
			t.Errorf("unit price field = %q, want 550", items[0].Fields[6])
		}
		if items[0].Fields[8] != "1" || items[1].Fields[8] != "3" {
			t.Errorf("tax fields = %q,%q, want 1,3", items[0].Fields[8], items[1].Fields[8])
		}
	}

	totals := ft.frames(cmdSubOrTotal)
	if len(totals) != 2 || totals[0].Fields[0] != "0" || totals[1].Fields[0] != "1" {
		t.Errorf("subtotal/total frames wrong: %+v", totals)
	}

	if pays := ft.frames(cmdPayment); len(pays) != 1 {
		t.Errorf("sent %d payment frames, want 1", len(pays))
	} else if pays[0].Fields[3] != "1225" {
		t.Errorf("payment amount field = %q, want 1225", pays[0].Fields[3])
	}

	prep := ft.frames(cmdPrepare)[0]
	if prep.Fields[0] != "1" {
		t.Errorf("prepare doc type = %q, want 1", prep.Fields[0])
	}
	if prep.Fields[2] != "INV-0042" {
		t.Errorf("prepare POS field = %q, want receipt number", prep.Fields[2])
	}
	if prep.Fields[4] != "" {
		t.Errorf("final consumer prepare should carry an empty CRIB, got %q", prep.Fields[4])
	}
	if prep.Fields[5] != result.NKF || prep.Fields[6] != result.NKF {
		t.Errorf("prepare NKF fields = %q,%q, want %q twice", prep.Fields[5], prep.Fields[6], result.NKF)
	}
}

func TestPrintDocumentFiscalCredit(t *testing.T) {
	ft := newFakeTransport()
	ft.script(cmdPrepare, okReply("77"))
	ft.script(cmdSubOrTotal, totalsReply(), totalsReply())

	req := saleRequest()
	req.Customer = fiscal.Customer{Name: "ACME SRL", CRIB: "131234567"}
	result, err := testDriver(ft).PrintDocument(req)
	if err != nil {
		t.Fatalf("PrintDocument() error: %v", err)
	}
	if result.DocumentType != 2 {
		t.Errorf("DocumentType = %d, want 2 (fiscal credit)", result.DocumentType)
	}

	prep := ft.frames(cmdPrepare)[0]
	if prep.Fields[0] != "2" {
		t.Errorf("prepare doc type = %q, want 2", prep.Fields[0])
	}
	if prep.Fields[3] != "ACME SRL" {
		t.Errorf("prepare customer = %q, want ACME SRL", prep.Fields[3])
	}
	if prep.Fields[4] != "0131234567" {
		t.Errorf("prepare CRIB = %q, want zero-padded 0131234567", prep.Fields[4])
	}
}

func TestPrintDocumentRefund(t *testing.T) {
	ft := documentTransport()
	req := saleRequest()
	req.Refund = true
	result, err := testDriver(ft).PrintDocument(req)
	if err != nil {
		t.Fatalf("PrintDocument() error: %v", err)
	}
	if result.DocumentType != 3 {
		t.Errorf("DocumentType = %d, want 3 (credit note)", result.DocumentType)
	}
}

func TestPrintDocumentItemFailureCancels(t *testing.T) {
	ft := documentTransport()
	ft.script(cmdAddItem, nakReply())

	_, err := testDriver(ft).PrintDocument(saleRequest())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("PrintDocument() error = %v, want ErrRejected", err)
	}
	if n := ft.cancelsAfterPrepare(); n != 1 {
		t.Errorf("failed document sent %d cancels after prepare, want exactly 1", n)
	}
	if closes := ft.frames(cmdCloseDocument); len(closes) != 0 {
		t.Errorf("failed document must never close, sent %d close frames", len(closes))
	}
}

func TestPrintDocumentSubtotalFailureCancels(t *testing.T) {
	ft := newFakeTransport()
	ft.script(cmdPrepare, okReply("123"))
	ft.script(cmdSubOrTotal, nakReply())

	_, err := testDriver(ft).PrintDocument(saleRequest())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("PrintDocument() error = %v, want ErrRejected", err)
	}
	if n := ft.cancelsAfterPrepare(); n != 1 {
		t.Errorf("sent %d cancels after prepare, want exactly 1", n)
	}
	if closes := ft.frames(cmdCloseDocument); len(closes) != 0 {
		t.Errorf("sent %d close frames, want 0", len(closes))
	}
}

func TestPrintDocumentUndecodableTotalsCancels(t *testing.T) {
	ft := newFakeTransport()
	ft.script(cmdPrepare, okReply("123"))
	// Accepted, but far too short to carry the totals block.
	ft.script(cmdSubOrTotal, okReply("12", "34"))

	_, err := testDriver(ft).PrintDocument(saleRequest())
	if err == nil {
		t.Fatal("expected an error for an undecodable totals reply")
	}
	if n := ft.cancelsAfterPrepare(); n != 1 {
		t.Errorf("sent %d cancels after prepare, want exactly 1", n)
	}
	if closes := ft.frames(cmdCloseDocument); len(closes) != 0 {
		t.Errorf("sent %d close frames, want 0", len(closes))
	}
}

func TestPrintDocumentPrepareWithoutNumberCancels(t *testing.T) {
	// The prepare is acknowledged but carries no document number, so
	// the device is left with an open document that must be cancelled.
	ft := newFakeTransport()

	_, err := testDriver(ft).PrintDocument(saleRequest())
	if err == nil {
		t.Fatal("expected an error when the prepare reply has no document number")
	}
	if n := ft.cancelsAfterPrepare(); n != 1 {
		t.Errorf("sent %d cancels after prepare, want exactly 1", n)
	}
	if items := ft.frames(cmdAddItem); len(items) != 0 {
		t.Errorf("sent %d item frames after a failed prepare, want 0", len(items))
	}
	if closes := ft.frames(cmdCloseDocument); len(closes) != 0 {
		t.Errorf("sent %d close frames, want 0", len(closes))
	}
}

func TestPrintDocumentPaymentFailureCancels(t *testing.T) {
	ft := documentTransport()
	ft.script(cmdPayment, nakReply())

	_, err := testDriver(ft).PrintDocument(saleRequest())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("PrintDocument() error = %v, want ErrRejected", err)
	}
	if n := ft.cancelsAfterPrepare(); n != 1 {
		t.Errorf("sent %d cancels after prepare, want exactly 1", n)
	}
	if closes := ft.frames(cmdCloseDocument); len(closes) != 0 {
		t.Errorf("sent %d close frames, want 0", len(closes))
	}
}

func TestPrintDocumentUnknownTaxRate(t *testing.T) {
	ft := documentTransport()
	req := saleRequest()
	req.Items[0].VATPercent = 13

	_, err := testDriver(ft).PrintDocument(req)
	if err == nil {
		t.Fatal("expected an error for an unmapped VAT rate")
	}
	if items := ft.frames(cmdAddItem); len(items) != 0 {
		t.Errorf("unmapped rate must fail before the wire, sent %d item frames", len(items))
	}
	if n := ft.cancelsAfterPrepare(); n != 1 {
		t.Errorf("sent %d cancels after prepare, want exactly 1", n)
	}
}

func TestPrintDocumentTipFailureIsNonFatal(t *testing.T) {
	ft := documentTransport()
	// First payment succeeds, the tip payment is rejected.
	ft.script(cmdPayment, okReply(), nakReply())

	req := saleRequest()
	req.Tips = []fiscal.Payment{{Method: PaymentMethods["other_1"], Amount: 1}}
	if _, err := testDriver(ft).PrintDocument(req); err != nil {
		t.Fatalf("rejected tip should not fail the document: %v", err)
	}
	if n := ft.cancelsAfterPrepare(); n != 0 {
		t.Errorf("sent %d cancels after prepare, want 0", n)
	}
}

func TestReprintDocumentStopsAtFirstMatch(t *testing.T) {
	ft := newFakeTransport()
	ft.script(cmdReprint, nakReply(), nakReply(), okReply())

	if err := testDriver(ft).ReprintDocument("55"); err != nil {
		t.Fatalf("ReprintDocument() error: %v", err)
	}
	frames := ft.frames(cmdReprint)
	if len(frames) != 3 {
		t.Fatalf("sent %d reprint frames, want 3 (stop at first match)", len(frames))
	}
	if frames[2].Fields[1] != "03" {
		t.Errorf("matching type code = %q, want 03", frames[2].Fields[1])
	}
	if frames[2].Fields[2] != "55" {
		t.Errorf("document number field = %q, want 55", frames[2].Fields[2])
	}
}

func TestReprintDocumentNotFound(t *testing.T) {
	ft := newFakeTransport()
	for i := 0; i < len(reprintTypeCodes); i++ {
		ft.script(cmdReprint, nakReply())
	}

	err := testDriver(ft).ReprintDocument("99")
	if !errors.Is(err, fiscal.ErrNoData) {
		t.Fatalf("ReprintDocument() error = %v, want ErrNoData", err)
	}
	if n := len(ft.frames(cmdReprint)); n != len(reprintTypeCodes) {
		t.Errorf("sent %d reprint frames, want %d", n, len(reprintTypeCodes))
	}
}

func TestPrintXReportNoData(t *testing.T) {
	ft := newFakeTransport()
	ft.script(cmdXReport, nakReply())

	if err := testDriver(ft).PrintXReport(); !errors.Is(err, fiscal.ErrNoData) {
		t.Errorf("PrintXReport() error = %v, want ErrNoData", err)
	}
}

func TestPrintZReportModes(t *testing.T) {
	ft := newFakeTransport()
	d := testDriver(ft)

	if err := d.PrintZReport(true); err != nil {
		t.Fatalf("PrintZReport(close) error: %v", err)
	}
	if err := d.PrintZReport(false); err != nil {
		t.Fatalf("PrintZReport(copy) error: %v", err)
	}
	frames := ft.frames(cmdZReport)
	if len(frames) != 2 || frames[0].Fields[0] != "1" || frames[1].Fields[0] != "0" {
		t.Errorf("Z report mode fields wrong: %+v", frames)
	}
}

func TestPrintZReportsByDate(t *testing.T) {
	start := time.Date(2025, 12, 1, 0, 0, 0, 0, time.Local)
	end := time.Date(2025, 12, 20, 0, 0, 0, 0, time.Local)

	t.Run("prints until the device runs out", func(t *testing.T) {
		ft := newFakeTransport()
		ft.script(cmdZReportNext, okReply(), okReply(), nakReply())

		result, err := testDriver(ft).PrintZReportsByDate(start, end)
		if err != nil {
			t.Fatalf("PrintZReportsByDate() error: %v", err)
		}
		if result.Count != 2 {
			t.Errorf("Count = %d, want 2", result.Count)
		}
		init := ft.frames(cmdZReportByDate)[0]
		if init.Fields[1] != "01122025" || init.Fields[2] != "20122025" {
			t.Errorf("date fields = %q,%q, want DDMMYYYY range", init.Fields[1], init.Fields[2])
		}
		if n := len(ft.frames(cmdZReportEnd)); n != 1 {
			t.Errorf("sent %d end frames, want 1", n)
		}
	})

	t.Run("empty range reports no data", func(t *testing.T) {
		ft := newFakeTransport()
		ft.script(cmdZReportNext, nakReply())

		_, err := testDriver(ft).PrintZReportsByDate(start, end)
		if !errors.Is(err, fiscal.ErrNoData) {
			t.Errorf("error = %v, want ErrNoData", err)
		}
	})
}

func TestPrintZReportsByNumberRange(t *testing.T) {
	ft := newFakeTransport()
	// Report #8 does not exist on the device.
	ft.script(cmdZReportByNumber, okReply(), nakReply(), okReply())

	result, err := testDriver(ft).PrintZReportsByNumberRange(7, 9)
	if err != nil {
		t.Fatalf("PrintZReportsByNumberRange() error: %v", err)
	}
	if result.Count != 2 {
		t.Errorf("Count = %d, want 2", result.Count)
	}
	frames := ft.frames(cmdZReportByNumber)
	if len(frames) != 3 {
		t.Fatalf("sent %d select frames, want 3", len(frames))
	}
	if frames[0].Fields[0] != "0007" || frames[0].Fields[1] != "0007" {
		t.Errorf("number fields = %q,%q, want 0007 twice", frames[0].Fields[0], frames[0].Fields[1])
	}
}

func TestPrintNoSale(t *testing.T) {
	ft := newFakeTransport()
	ft.script(cmdNoSaleClose, okReply("201"))

	if err := testDriver(ft).PrintNoSale("drawer count"); err != nil {
		t.Fatalf("PrintNoSale() error: %v", err)
	}
	if n := len(ft.frames(cmdNoSaleOpen)); n != 1 {
		t.Errorf("sent %d open frames, want 1", n)
	}
	found := false
	for _, f := range ft.frames(cmdNoSaleLine) {
		if len(f.Fields) == 1 && f.Fields[0] == "Reason: drawer count" {
			found = true
		}
	}
	if !found {
		t.Error("reason line was not printed")
	}
}

func TestSequentialFromReceipt(t *testing.T) {
	tests := []struct {
		receipt string
		want    int
	}{
		{"INV-0042", 42},
		{"POS/2025/001234", 1234},
		{"9876543210", 543210},
		{"no digits", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := sequentialFromReceipt(tt.receipt); got != tt.want {
			t.Errorf("sequentialFromReceipt(%q) = %d, want %d", tt.receipt, got, tt.want)
		}
	}
}
