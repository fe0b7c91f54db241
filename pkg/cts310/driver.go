package cts310

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/juju/loggo"

	"printhub/pkg/fiscal"
	"printhub/pkg/nkf"
)

var log = loggo.GetLogger("cts310")

// Config holds the driver's fiscal identity and receipt defaults.
type Config struct {
	Identity nkf.Identity `json:"identity"`

	// Branch and POSCode go into the document header fields of the
	// prepare command.
	Branch  string `json:"branch,omitempty"`
	POSCode string `json:"posCode,omitempty"`

	// Anonymous customer used for final-consumer documents.
	DefaultCustomerName string `json:"defaultCustomerName,omitempty"`
	DefaultCustomerCRIB string `json:"defaultCustomerCRIB,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.Branch == "" {
		c.Branch = "9001"
	}
	if c.POSCode == "" {
		c.POSCode = "1001"
	}
	if c.DefaultCustomerName == "" {
		c.DefaultCustomerName = "Regular client"
	}
	if c.DefaultCustomerCRIB == "" {
		c.DefaultCustomerCRIB = "1000000000"
	}
}

// Driver implements fiscal.Printer for the CTS310ii over a Transport.
type Driver struct {
	config    Config
	transport Transport
	connected bool
}

// NewDriver wraps a transport. Connect must be called before any
// fiscal operation.
func NewDriver(config Config, transport Transport) *Driver {
	config.applyDefaults()
	return &Driver{config: config, transport: transport}
}

func (d *Driver) Name() string { return "cts310ii" }

// send performs one framed exchange and classifies the reply.
func (d *Driver) send(f Frame) (Response, Verdict, error) {
	log.Debugf("tx %s", f.Hex())
	resp, err := d.transport.Send(f)
	if err != nil {
		log.Debugf("tx failed: %v", err)
		return nil, NoResponse, err
	}
	log.Debugf("rx %s", resp.Hex())
	return resp, resp.Classify(), nil
}

// Connect probes the device, synchronizes its clock and logs its fiscal
// registration.
func (d *Driver) Connect() error {
	_, verdict, err := d.send(NewFrame(cmdIdentify))
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	if verdict != Success {
		return fmt.Errorf("identify: %w", verdictError(verdict))
	}
	d.connected = true
	log.Infof("connected to CTS310ii printer")

	if err := d.syncDateTime(); err != nil {
		log.Warningf("datetime sync failed: %v", err)
	}
	d.logFiscalInfo()
	return nil
}

func (d *Driver) Disconnect() error {
	d.connected = false
	log.Infof("disconnected from printer")
	return d.transport.Close()
}

func verdictError(v Verdict) error {
	if v == Rejected {
		return ErrRejected
	}
	return ErrNoResponse
}

// syncDateTime sets the printer clock when it drifts more than two
// minutes from system time.
func (d *Driver) syncDateTime() error {
	resp, verdict, err := d.send(NewFrame(cmdGetDateTime))
	if err != nil {
		return err
	}
	if verdict != Success {
		return fmt.Errorf("get datetime: %w", verdictError(verdict))
	}
	printerTime, err := decodeDateTime(resp)
	if err != nil {
		return err
	}

	now := time.Now()
	drift := now.Sub(printerTime)
	if drift < 0 {
		drift = -drift
	}
	if drift <= 2*time.Minute {
		log.Debugf("printer clock within %s of system time", drift)
		return nil
	}

	log.Infof("printer clock off by %s, synchronizing", drift)
	_, verdict, err = d.send(NewFrame(cmdSetDateTime,
		now.Format(dateLayout), now.Format(timeLayout)))
	if err != nil {
		return err
	}
	if verdict != Success {
		return fmt.Errorf("set datetime: %w", verdictError(verdict))
	}
	log.Infof("printer clock synchronized")
	return nil
}

func (d *Driver) logFiscalInfo() {
	resp, verdict, err := d.send(NewFrame(cmdFiscalInfo))
	if err != nil || verdict != Success {
		log.Warningf("fiscal info read failed")
		return
	}
	info, err := decodeFiscalInfo(resp)
	if err != nil {
		log.Warningf("fiscal info decode failed: %v", err)
		return
	}
	log.Infof("fiscal identity: CRIB=%s business=%q", info.CRIB, info.BusinessName)
	for _, field := range info.unconfiguredFields() {
		log.Warningf("printer %s is not configured", field)
	}
}

// GetStatus reads the device state machine and hardware status word.
func (d *Driver) GetStatus() (*fiscal.Status, error) {
	if !d.connected {
		return &fiscal.Status{Connected: false}, nil
	}
	status := &fiscal.Status{Connected: true}

	if state, err := d.printerState(); err == nil {
		status.State = state.StateDescription
		status.StateCode = state.StateCode
		status.ResponseCode = state.ResponseCode
	} else {
		log.Warningf("printer state read failed: %v", err)
	}

	resp, verdict, err := d.send(NewFrame(cmdHardwareStatus))
	if err == nil && verdict == Success {
		if hw, err := decodeHardwareStatus(resp); err == nil {
			status.Online = hw.Online
			status.CoverOpen = hw.CoverOpen
			status.PaperLow = hw.PaperLow()
		} else {
			log.Warningf("hardware status decode failed: %v", err)
		}
	} else {
		log.Warningf("hardware status read failed")
	}
	return status, nil
}

func (d *Driver) printerState() (*PrinterState, error) {
	resp, verdict, err := d.send(NewFrame(cmdPrinterState))
	if err != nil {
		return nil, err
	}
	if verdict != Success {
		return nil, fmt.Errorf("printer state: %w", verdictError(verdict))
	}
	return decodePrinterState(resp)
}

// logPrinterState records the device's own view after a rejected
// command; the response code names the reason.
func (d *Driver) logPrinterState() {
	state, err := d.printerState()
	if err != nil {
		return
	}
	log.Infof("printer state: %s (%s), last response: %s (%s)",
		state.StateDescription, state.StateCode,
		state.ResponseDescription, state.ResponseCode)
}

// cancelDocument aborts the in-flight document. A NAK means there was
// nothing to cancel, which counts as done.
func (d *Driver) cancelDocument(reason string) bool {
	resp, verdict, err := d.send(NewFrame(cmdCancelDocument))
	if err != nil {
		log.Warningf("cancel document (%s): %v", reason, err)
		return false
	}
	switch verdict {
	case Success:
		log.Debugf("document cancelled: %s", reason)
		return true
	case Rejected:
		log.Debugf("no document to cancel")
		return true
	default:
		log.Errorf("cancel document failed, response %s", resp.Hex())
		return false
	}
}

// PrintDocument runs the full document lifecycle. Any hard failure past
// the prepare step cancels the document on the device before returning.
func (d *Driver) PrintDocument(req fiscal.PrintRequest) (*fiscal.PrintResult, error) {
	if !d.connected {
		return nil, ErrNotConnected
	}

	hasCustomer := req.Customer.Name != "" && req.Customer.CRIB != "" &&
		req.Customer.Name != d.config.DefaultCustomerName
	docType := nkf.ResolveDocumentType(req.Refund, hasCustomer)

	customerName := req.Customer.Name
	customerCRIB := req.Customer.CRIB
	if customerName == "" {
		customerName = d.config.DefaultCustomerName
	}
	if customerCRIB == "" {
		customerCRIB = d.config.DefaultCustomerCRIB
	}
	customerCRIB = zfill(customerCRIB, 10)

	sequential := req.Sequential
	if sequential == 0 {
		sequential = sequentialFromReceipt(req.ReceiptNumber)
	}
	documentNKF := nkf.Generate(d.config.Identity, docType, sequential)
	log.Infof("generated NKF %s (type=%d, receipt=%q, sequential=%d)",
		documentNKF, int(docType), req.ReceiptNumber, sequential)

	// Clear any document a crashed predecessor left open.
	d.cancelDocument("pre-print cleanup")

	docNumber, err := d.prepareDocument(docType, customerName, customerCRIB, hasCustomer, documentNKF, req.ReceiptNumber)
	if err != nil {
		return nil, err
	}

	fail := func(step string, err error) (*fiscal.PrintResult, error) {
		d.cancelDocument(step)
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	if hasCustomer {
		d.addComment(fmt.Sprintf("Customer: %s", customerName))
		d.addComment(fmt.Sprintf("CRIB: %s", customerCRIB))
	}

	for _, item := range req.Items {
		if err := d.addItem(item); err != nil {
			return fail("add item", err)
		}
	}

	if req.ServiceCharge != nil {
		if err := d.applyAdjustment(*req.ServiceCharge); err != nil {
			log.Warningf("service charge not applied: %v", err)
		}
	}

	if _, err := d.subOrTotal("0"); err != nil {
		return fail("subtotal", err)
	}

	if req.Discount != nil {
		if err := d.applyAdjustment(*req.Discount); err != nil {
			log.Warningf("discount not applied: %v", err)
		}
	}
	if req.Surcharge != nil {
		if err := d.applyAdjustment(*req.Surcharge); err != nil {
			log.Warningf("surcharge not applied: %v", err)
		}
	}

	if _, err := d.subOrTotal("1"); err != nil {
		return fail("total", err)
	}

	for _, pay := range req.Payments {
		if err := d.payment(pay); err != nil {
			return fail("payment", err)
		}
	}
	for _, tip := range req.Tips {
		if err := d.payment(tip); err != nil {
			log.Warningf("tip not processed: %v", err)
		}
	}

	d.addFooter(req, docNumber, customerName, customerCRIB, hasCustomer)

	if err := d.closeDocument(); err != nil {
		return nil, fmt.Errorf("close document: %w", err)
	}

	log.Infof("document printed: %s (NKF %s)", docNumber, documentNKF)
	return &fiscal.PrintResult{
		DocumentNumber: docNumber,
		NKF:            documentNKF,
		DocumentType:   int(docType),
	}, nil
}

func (d *Driver) prepareDocument(docType nkf.DocumentType, customerName, customerCRIB string, hasCustomer bool, documentNKF, receiptNumber string) (string, error) {
	pos := d.config.POSCode
	if receiptNumber != "" {
		pos = receiptNumber
	}

	// The customer CRIB field is carried only on fiscal-credit
	// documents; for final consumers it travels empty, which suppresses
	// the CRIB line on the printout.
	crib := ""
	if docType == nkf.InvoiceFiscalCredit || docType == nkf.CreditNoteFiscalCredit {
		crib = customerCRIB
	}
	name := customerName
	if crib == "" {
		name = d.config.DefaultCustomerName
	}

	f := NewFrame(cmdPrepare,
		strconv.Itoa(int(docType)),
		d.config.Branch,
		pos,
		name,
		crib,
		documentNKF,
		documentNKF, // NKF affected: same document unless amending
	)
	resp, verdict, err := d.send(f)
	if err != nil {
		return "", fmt.Errorf("prepare document: %w", err)
	}
	if verdict != Success {
		d.logPrinterState()
		return "", fmt.Errorf("prepare document: %w", verdictError(verdict))
	}
	docNumber, err := decodeDocumentNumber(resp)
	if err != nil {
		// The device accepted the prepare, so a document is open.
		d.cancelDocument("prepare reply carries no document number")
		return "", fmt.Errorf("prepare document: %w", err)
	}
	log.Infof("document prepared: %s", docNumber)
	return docNumber, nil
}

func (d *Driver) addItem(item fiscal.Item) error {
	taxID := "0"
	if !item.TaxExempt {
		var ok bool
		taxID, ok = TaxIDs[strconv.FormatFloat(item.VATPercent, 'f', -1, 64)]
		if !ok {
			return fmt.Errorf("no tax slot for VAT rate %v%%", item.VATPercent)
		}
	}

	itemType := "01"
	if item.Void {
		itemType = "02"
	}

	description := item.Description
	if item.DiscountPercent > 0 {
		description = fmt.Sprintf("[Discount of %.0f%% applied] %s", item.DiscountPercent, description)
	}
	lines := LayoutItemText(description, item.CustomerNote)

	f := NewFrame(cmdAddItem,
		itemType,
		lines[0],
		lines[1],
		lines[2],
		" ", // product code: a space hides it without upsetting the firmware
		EncodeAmount(item.Quantity, 3),
		EncodeAmount(item.UnitPrice, 2),
		item.Unit,
		taxID,
		"0",   // item discount type
		"000", // item discount amount
		"000", // item discount percent
		"2",
		"2",
	)
	_, verdict, err := d.send(f)
	if err != nil {
		return err
	}
	if verdict != Success {
		d.logPrinterState()
		return verdictError(verdict)
	}
	return nil
}

func (d *Driver) applyAdjustment(adj fiscal.Adjustment) error {
	kind := AdjustmentDiscount
	switch adj.Kind {
	case fiscal.Surcharge:
		kind = AdjustmentSurcharge
	case fiscal.ServiceCharge:
		kind = AdjustmentServiceCharge
	}
	amount := "000"
	if adj.Amount > 0 {
		amount = EncodeAmount(adj.Amount, 2)
	}
	percent := "000"
	if adj.Percent > 0 {
		percent = EncodeAmount(adj.Percent, 2)
	}

	_, verdict, err := d.send(NewFrame(cmdDiscountSurcharge, kind, adj.Description, amount, percent))
	if err != nil {
		return err
	}
	if verdict != Success {
		d.logPrinterState()
		return verdictError(verdict)
	}
	return nil
}

// subOrTotal asks the device to compute and print the running subtotal
// ("0") or the final total ("1").
func (d *Driver) subOrTotal(mode string) (*DocumentTotals, error) {
	resp, verdict, err := d.send(NewFrame(cmdSubOrTotal, mode))
	if err != nil {
		return nil, err
	}
	if verdict != Success {
		d.logPrinterState()
		return nil, verdictError(verdict)
	}
	totals, err := decodeDocumentTotals(resp)
	if err != nil {
		return nil, fmt.Errorf("decode totals: %w", err)
	}
	log.Debugf("document total %.2f over %v items", totals.DocumentTotal, totals.ItemQuantity)
	return totals, nil
}

func (d *Driver) payment(pay fiscal.Payment) error {
	description := pay.Description
	if description == "" {
		description = " "
	}
	f := NewFrame(cmdPayment,
		"1",
		pay.Method,
		description,
		EncodeAmount(pay.Amount, 2),
	)
	_, verdict, err := d.send(f)
	if err != nil {
		return err
	}
	if verdict != Success {
		d.logPrinterState()
		return verdictError(verdict)
	}
	return nil
}

func (d *Driver) addComment(text string) bool {
	_, verdict, err := d.send(NewFrame(cmdAddComment, text))
	if err != nil {
		log.Warningf("comment %q not printed: %v", text, err)
		return false
	}
	if verdict != Success {
		log.Warningf("comment %q rejected", text)
		return false
	}
	return true
}

// addFooter prints the trailing receipt block: customer identification,
// receipt/POS references and the free-text customer note. Comment
// failures are non-fatal.
func (d *Driver) addFooter(req fiscal.PrintRequest, docNumber, customerName, customerCRIB string, hasCustomer bool) {
	rule := strings.Repeat("=", LineWidth)
	if hasCustomer {
		d.addComment(rule)
		d.addComment(fmt.Sprintf("CUSTOMER: %s", customerName))
		d.addComment(fmt.Sprintf("CRIB: %s", customerCRIB))
		d.addComment(rule)
	}

	if req.ReceiptNumber != "" {
		d.addComment(fmt.Sprintf("Receipt ID: %s", req.ReceiptNumber))
	}
	if req.POSName != "" {
		if strings.HasPrefix(req.POSName, "Operator:") {
			d.addComment(req.POSName)
		} else {
			d.addComment(fmt.Sprintf("POS: %s", req.POSName))
		}
	}
	if d.config.Identity.CashRegister != "" {
		d.addComment(fmt.Sprintf("Cash Register: %s", d.config.Identity.CashRegister))
	}
	d.addComment(fmt.Sprintf("Document Nr: %s", docNumber))

	if req.Comment != "" {
		divider := strings.Repeat("-", LineWidth)
		d.addComment(divider)
		d.addComment("Customer note:")
		for _, line := range WrapText(req.Comment, LineWidth, 1<<30) {
			d.addComment(line)
		}
		d.addComment(divider)
	}
}

// closeDocument finalizes the document; a failed close is downgraded to
// a cancel so the device never stays mid-document.
func (d *Driver) closeDocument() error {
	_, verdict, err := d.send(NewFrame(cmdCloseDocument))
	if err == nil && verdict == Success {
		return nil
	}
	d.logPrinterState()
	d.cancelDocument("close failed")
	if err != nil {
		return err
	}
	return verdictError(verdict)
}

// PrintXReport prints the non-closing snapshot. A NAK usually means the
// fiscal day has nothing to report.
func (d *Driver) PrintXReport() error {
	if !d.connected {
		return ErrNotConnected
	}
	log.Infof("printing X report")
	_, verdict, err := d.send(NewFrame(cmdXReport))
	if err != nil {
		return err
	}
	switch verdict {
	case Success:
		log.Infof("X report printed")
		return nil
	case Rejected:
		return fmt.Errorf("x report: %w", fiscal.ErrNoData)
	default:
		return ErrNoResponse
	}
}

// PrintZReport closes the fiscal day, or prints a copy of the pending
// totals when closeDay is false.
func (d *Driver) PrintZReport(closeDay bool) error {
	if !d.connected {
		return ErrNotConnected
	}
	mode := "0"
	action := "copy"
	if closeDay {
		mode = "1"
		action = "closing fiscal day"
	}
	log.Infof("printing Z report (%s)", action)

	_, verdict, err := d.send(NewFrame(cmdZReport, mode))
	if err != nil {
		return err
	}
	switch verdict {
	case Success:
		log.Infof("Z report printed (%s)", action)
		return nil
	case Rejected:
		return fmt.Errorf("z report: %w", fiscal.ErrNoData)
	default:
		return ErrNoResponse
	}
}

// PrintZReportsByDate reprints every stored Z report in the date range
// using the device's report iteration sequence.
func (d *Driver) PrintZReportsByDate(start, end time.Time) (*fiscal.ReportResult, error) {
	if !d.connected {
		return nil, ErrNotConnected
	}
	startStr := start.Format(dateLayout)
	endStr := end.Format(dateLayout)
	log.Infof("printing Z reports for %s..%s", startStr, endStr)

	_, verdict, err := d.send(NewFrame(cmdZReportByDate, "0", startStr, endStr))
	if err != nil {
		return nil, err
	}
	if verdict != Success {
		return nil, fmt.Errorf("z reports by date %s..%s: %w", startStr, endStr, fiscal.ErrNoData)
	}

	count := 0
	for {
		resp, verdict, err := d.send(NewFrame(cmdZReportNext))
		if err != nil {
			break
		}
		if verdict == Rejected {
			break
		}
		if verdict != Success {
			log.Warningf("report iteration stopped on response %s", resp.Hex())
			break
		}
		count++
	}

	if _, verdict, err := d.send(NewFrame(cmdZReportEnd)); err != nil || verdict != Success {
		log.Warningf("report iteration end not acknowledged")
	}

	if count == 0 {
		return nil, fmt.Errorf("z reports %s..%s: %w", startStr, endStr, fiscal.ErrNoData)
	}
	msg := fmt.Sprintf("printed %d Z report(s) from %s to %s", count, startStr, endStr)
	log.Infof("%s", msg)
	return &fiscal.ReportResult{Count: count, Message: msg}, nil
}

// PrintZReportByNumber reprints one stored Z report.
func (d *Driver) PrintZReportByNumber(number int) error {
	if !d.connected {
		return ErrNotConnected
	}
	ok, err := d.printZByNumber(number)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("z report #%d: %w", number, fiscal.ErrNoData)
	}
	return nil
}

// PrintZReportsByNumberRange reprints each report in [start, end]
// individually; the device's range form of 0x75 is unreliable.
func (d *Driver) PrintZReportsByNumberRange(start, end int) (*fiscal.ReportResult, error) {
	if !d.connected {
		return nil, ErrNotConnected
	}
	log.Infof("printing Z reports #%d..#%d", start, end)

	printed := 0
	for n := start; n <= end; n++ {
		ok, err := d.printZByNumber(n)
		if err != nil {
			return nil, err
		}
		if ok {
			printed++
		} else {
			log.Warningf("Z report #%d not found", n)
		}
	}
	if printed == 0 {
		return nil, fmt.Errorf("z reports #%d..#%d: %w", start, end, fiscal.ErrNoData)
	}
	msg := fmt.Sprintf("printed %d Z report(s) (#%d to #%d)", printed, start, end)
	log.Infof("%s", msg)
	return &fiscal.ReportResult{Count: printed, Message: msg}, nil
}

func (d *Driver) printZByNumber(number int) (bool, error) {
	num := zfill(strconv.Itoa(number), 4)
	_, verdict, err := d.send(NewFrame(cmdZReportByNumber, num, num))
	if err != nil {
		return false, err
	}
	if verdict != Success {
		return false, nil
	}

	_, reportVerdict, err := d.send(NewFrame(cmdZReportNext))

	// End the sequence regardless of the fetch outcome.
	d.send(NewFrame(cmdZReportEnd))

	if err != nil {
		return false, err
	}
	return reportVerdict == Success, nil
}

// reprintTypeCodes are tried in order; the device cannot look a
// document up without its type, so each code is probed until one
// recognizes the number.
var reprintTypeCodes = []string{"01", "02", "03", "04", "05", "06", "07", "08", "09", "10"}

// ReprintDocument prints a non-fiscal copy of a stored document.
func (d *Driver) ReprintDocument(documentNumber string) error {
	if !d.connected {
		return ErrNotConnected
	}
	log.Infof("reprinting document %s", documentNumber)

	for _, typeCode := range reprintTypeCodes {
		resp, verdict, err := d.send(NewFrame(cmdReprint, "1", typeCode, documentNumber))
		if err != nil {
			return err
		}
		if verdict == Success {
			log.Infof("document %s reprinted (type %s)", documentNumber, typeCode)
			return nil
		}
		log.Debugf("type %s: %s", typeCode, resp.Hex())
	}
	return fmt.Errorf("document %s: %w", documentNumber, fiscal.ErrNoData)
}

// PrintNoSale prints the three-step non-fiscal drawer-open document.
func (d *Driver) PrintNoSale(reason string) error {
	if !d.connected {
		return ErrNotConnected
	}
	log.Infof("printing no sale document")

	_, verdict, err := d.send(NewFrame(cmdNoSaleOpen))
	if err != nil {
		return fmt.Errorf("open no sale: %w", err)
	}
	if verdict != Success {
		return fmt.Errorf("open no sale: %w", verdictError(verdict))
	}

	rule := strings.Repeat("=", LineWidth)
	lines := []string{rule, " ", "          NO SALE          ", " "}
	if reason != "" {
		if len(reason) > 40 {
			reason = reason[:40]
		}
		lines = append(lines, fmt.Sprintf("Reason: %s", reason), " ")
	}
	lines = append(lines, rule)

	for _, line := range lines {
		if _, verdict, err := d.send(NewFrame(cmdNoSaleLine, line)); err != nil || verdict != Success {
			log.Warningf("no sale line %q not printed", line)
		}
	}

	resp, verdict, err := d.send(NewFrame(cmdNoSaleClose))
	if err != nil {
		return fmt.Errorf("close no sale: %w", err)
	}
	if verdict != Success {
		return fmt.Errorf("close no sale: %w", verdictError(verdict))
	}
	if docNumber, err := decodeDocumentNumber(resp); err == nil {
		log.Infof("no sale document printed: %s", docNumber)
	} else {
		log.Infof("no sale document printed")
	}
	return nil
}

// sequentialFromReceipt derives the NKF sequential from the trailing
// digits of a POS receipt identifier.
func sequentialFromReceipt(receipt string) int {
	digits := make([]byte, 0, len(receipt))
	for i := 0; i < len(receipt); i++ {
		if receipt[i] >= '0' && receipt[i] <= '9' {
			digits = append(digits, receipt[i])
		}
	}
	if len(digits) == 0 {
		return 0
	}
	if len(digits) > 6 {
		digits = digits[len(digits)-6:]
	}
	n, _ := strconv.Atoi(string(digits))
	return n
}

func zfill(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}
