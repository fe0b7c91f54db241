// Package salesbook renders the government sales book from the
// printer's audit memory: one CSV-like file per day or month, "||"
// delimited, CRLF terminated, with a SHA-1 integrity field spliced
// into the header line.
package salesbook

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/juju/loggo"

	"printhub/pkg/cts310"
	"printhub/pkg/fiscal"
)

var log = loggo.GetLogger("salesbook")

// Reader is the slice of the audit memory API the generator consumes.
// *cts310.MemoryReader satisfies it.
type Reader interface {
	ReadZReportsByDate(start, end time.Time) ([]*cts310.ZReportRecord, error)
	ReadTransactionsByDate(start, end time.Time) ([]*cts310.TransactionRecord, error)
}

// Generator builds daily and monthly sales books.
type Generator struct {
	reader Reader
	cfg    Config
}

func NewGenerator(reader Reader, cfg Config) *Generator {
	cfg.ApplyDefaults()
	return &Generator{reader: reader, cfg: cfg}
}

// detail is one built transaction line plus the parsed figures the
// header aggregation needs.
type detail struct {
	fields  []string
	docType int
	amount  float64
	iva     float64
	ivaTax1 float64
	ivaTax2 float64
	ivaTax3 float64
	nkk     string
}

// GenerateDaily writes the sales book for one calendar day and returns
// the file path. A day without Z reports yields fiscal.ErrNoData.
func (g *Generator) GenerateDaily(date time.Time) (string, error) {
	log.Infof("generating daily sales book for %s", date.Format("2006-01-02"))

	zReports, err := g.reader.ReadZReportsByDate(date, date)
	if err != nil {
		return "", fmt.Errorf("read Z reports: %w", err)
	}
	zReport := pickDayReport(zReports)
	if zReport == nil {
		return "", fmt.Errorf("sales book %s: %w", date.Format("2006-01-02"), fiscal.ErrNoData)
	}

	var transactions []*cts310.TransactionRecord
	if !g.cfg.OmitDetails {
		transactions, err = g.reader.ReadTransactionsByDate(date, date)
		if err != nil {
			return "", fmt.Errorf("read transactions: %w", err)
		}
		if len(transactions) == 0 {
			log.Warningf("no transactions stored for %s", date.Format("2006-01-02"))
		}
	}

	details := g.buildDetails(transactions)
	header := g.buildDailyHeader(zReport, details)
	txnLines := detailLines(details)

	if !g.cfg.OmitHash {
		header[1] = ""
		header[1] = hashLines(append([]string{joinFields(header)}, txnLines...))
	}

	dir := filepath.Join(g.cfg.ExportRoot,
		strconv.Itoa(date.Year()),
		fmt.Sprintf("%02d", int(date.Month())),
		fmt.Sprintf("%02d", date.Day()))
	name := fmt.Sprintf(g.cfg.DailyFilename, date.Format("20060102"))
	path := filepath.Join(dir, name)

	lines := append([]string{joinFields(header)}, txnLines...)
	if err := writeBook(path, lines); err != nil {
		return "", err
	}
	log.Infof("daily sales book written: %s (1 header + %d transactions)", path, len(txnLines))
	return path, nil
}

// GenerateMonthly writes the sales book for one calendar month: a
// monthly header, one daily header per day that closed with a Z
// report, then every transaction line.
func (g *Generator) GenerateMonthly(year int, month time.Month) (string, error) {
	log.Infof("generating monthly sales book for %d-%02d", year, int(month))

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	last := first.AddDate(0, 1, -1)

	zReports, err := g.reader.ReadZReportsByDate(first, last)
	if err != nil {
		return "", fmt.Errorf("read Z reports: %w", err)
	}
	if len(zReports) == 0 {
		return "", fmt.Errorf("sales book %d-%02d: %w", year, int(month), fiscal.ErrNoData)
	}

	var transactions []*cts310.TransactionRecord
	if !g.cfg.OmitDetails {
		transactions, err = g.reader.ReadTransactionsByDate(first, last)
		if err != nil {
			return "", fmt.Errorf("read transactions: %w", err)
		}
	}

	// One Z report per day; the first wins when a day closed twice.
	zByDay := make(map[string]*cts310.ZReportRecord)
	for _, z := range zReports {
		day := normalizeDate(z.Date)
		if day == "" {
			log.Warningf("Z report Z%s has no usable date %q, skipped", z.ZNumber, z.Date)
			continue
		}
		if _, seen := zByDay[day]; !seen {
			zByDay[day] = z
		}
	}
	txnByDay := make(map[string][]*cts310.TransactionRecord)
	for _, txn := range transactions {
		day := normalizeDate(txn.Date)
		if day == "" {
			continue
		}
		txnByDay[day] = append(txnByDay[day], txn)
	}

	days := make([]string, 0, len(zByDay))
	for day := range zByDay {
		days = append(days, day)
	}
	sort.Strings(days)

	var dailyHeaders, allDetailLines []string
	var allDetails []detail
	for _, day := range days {
		details := g.buildDetails(txnByDay[day])
		lines := detailLines(details)
		header := g.buildDailyHeader(zByDay[day], details)
		if !g.cfg.OmitHash {
			header[1] = ""
			header[1] = hashLines(append([]string{joinFields(header)}, lines...))
		}
		dailyHeaders = append(dailyHeaders, joinFields(header))
		allDetailLines = append(allDetailLines, lines...)
		allDetails = append(allDetails, details...)
	}

	monthly := g.buildMonthlyHeader(allDetails)
	if !g.cfg.OmitHash {
		monthly[1] = ""
		input := append([]string{joinFields(monthly)}, dailyHeaders...)
		input = append(input, allDetailLines...)
		monthly[1] = hashLines(input)
	}

	dir := filepath.Join(g.cfg.ExportRoot,
		strconv.Itoa(year), fmt.Sprintf("%02d", int(month)))
	name := fmt.Sprintf(g.cfg.MonthlyFilename, year, int(month))
	path := filepath.Join(dir, name)

	lines := append([]string{joinFields(monthly)}, dailyHeaders...)
	lines = append(lines, allDetailLines...)
	if err := writeBook(path, lines); err != nil {
		return "", err
	}
	log.Infof("monthly sales book written: %s (%d days, %d transactions)",
		path, len(dailyHeaders), len(allDetailLines))
	return path, nil
}

// pickDayReport prefers the day's sales closing report and falls back
// to any stored report (a day may hold only system events).
func pickDayReport(zReports []*cts310.ZReportRecord) *cts310.ZReportRecord {
	for _, z := range zReports {
		if z.IsSales() {
			return z
		}
	}
	if len(zReports) > 0 {
		log.Infof("no sales closing stored, using a system event report")
		return zReports[0]
	}
	return nil
}

// buildDetails maps stored transactions to type 2 lines. Records that
// do not map to a document kind are skipped, not fatal.
func (g *Generator) buildDetails(transactions []*cts310.TransactionRecord) []detail {
	var details []detail
	for _, txn := range transactions {
		docType := g.mapDocType(txn)
		if docType == 0 {
			log.Debugf("transaction %s skipped, raw type %q", txn.NKF, txn.DocType)
			continue
		}

		nkk := formatNKK(txn.NKF)
		customerCRIB := txn.CustomerCRIB
		if strings.TrimSpace(customerCRIB) == "" {
			customerCRIB = g.cfg.DefaultClientCRIB
		}

		amountTotal := safeFloat(txn.Total)
		ivaTotal := safeFloat(txn.TaxAAmount) + safeFloat(txn.TaxBAmount)

		subtotal := safeFloat(txn.Subtotal)
		serviceCharge := safeFloat(txn.ServiceCharge)
		serviceChargePct := 0.0
		if subtotal != 0 {
			serviceChargePct = serviceCharge / subtotal * 100
		}

		fields := []string{
			"2",
			formatTaxpayerID(g.cfg.TaxpayerID),
			formatCode(g.cfg.BranchCode, 4),
			formatCode(g.cfg.POSNumber, 4),
			nkk,
			toCSVDate(txn.Date),
			toCSVTime(txn.Time),
			strconv.Itoa(docType),
			formatCode("0", 3),
			formatTaxpayerID(customerCRIB),
			formatNKF(txn.ClientField),
			formatNKF(""),
			formatAmount(amountTotal),
			formatAmount(ivaTotal),
			formatCode("0", 6),
			formatAmount(safeFloat(txn.TaxABase)),
			formatAmount(safeFloat(txn.TaxAAmount)),
			formatCode("0", 6),
			formatAmount(safeFloat(txn.TaxBBase)),
			formatAmount(safeFloat(txn.TaxBAmount)),
			formatCode("0", 6),
			formatAmount(0),
			formatAmount(0),
			formatCode("0", 6),
			formatAmount(serviceChargePct),
			formatAmount(serviceCharge),
			formatAmount(safeFloat(txn.Discount)),
			formatAmount(0), // donations
			formatCode("0", 6),
		}
		fields = append(fields, paymentAmounts(txn.PaymentMethod, amountTotal)...)
		fields = append(fields, g.cfg.TipLegal)

		details = append(details, detail{
			fields:  fields,
			docType: docType,
			amount:  amountTotal,
			iva:     ivaTotal,
			ivaTax1: safeFloat(txn.TaxAAmount),
			ivaTax2: safeFloat(txn.TaxBAmount),
			nkk:     nkk,
		})
	}
	return details
}

// buildDailyHeader builds the 28 type 1 fields. Field 2 is the hash
// slot, filled in after the detail lines exist.
func (g *Generator) buildDailyHeader(zReport *cts310.ZReportRecord, details []detail) []string {
	t := summarize(details)
	firstNKK, lastNKK := nkkBounds(details)
	return []string{
		"1",
		"",
		formatCode(g.cfg.FiscalDeviceID, 6),
		strconv.Itoa(t.count),
		formatAmount(t.amount),
		formatAmount(t.iva),
		formatAmount(t.ivaTax1),
		formatAmount(t.ivaTax2),
		formatAmount(t.ivaTax3),
		formatAmount(t.amountFinalConsumer),
		formatAmount(t.ivaFinalConsumer),
		formatAmount(t.amountFinalConsumer),
		formatAmount(t.amountFiscal),
		formatAmount(t.ivaFiscal),
		formatAmount(t.amountFiscal),
		formatAmount(t.amountCreditFinal),
		formatAmount(t.ivaCreditFinal),
		formatAmount(t.amountCreditFinal),
		formatAmount(t.amountCreditFiscal),
		formatAmount(t.ivaCreditFiscal),
		formatAmount(t.amountCreditFiscal),
		"0",
		firstNKK,
		lastNKK,
		zReport.ZNumber,
		g.cfg.ProgramProvider,
		g.cfg.SoftwareVersion,
		g.cfg.TipLegal,
	}
}

// buildMonthlyHeader builds the 16 type 3 fields.
func (g *Generator) buildMonthlyHeader(details []detail) []string {
	t := summarize(details)
	return []string{
		"3",
		"",
		strconv.Itoa(t.count),
		formatAmount(t.amount),
		formatAmount(t.iva),
		formatAmount(t.ivaTax1),
		formatAmount(t.ivaTax2),
		formatAmount(t.ivaTax3),
		formatAmount(t.amountFinalConsumer),
		formatAmount(t.ivaFinalConsumer),
		formatAmount(t.amountFiscal),
		formatAmount(t.ivaFiscal),
		formatAmount(t.amountCreditFinal),
		formatAmount(t.ivaCreditFinal),
		formatAmount(t.amountCreditFiscal),
		formatAmount(t.ivaCreditFiscal),
	}
}

// mapDocType maps a stored transaction to the book's document kind:
// 1 sale/final consumer, 2 sale/fiscal credit, 3 refund/final
// consumer, 4 refund/fiscal credit. 0 means the record is not a
// sale or refund and is skipped.
func (g *Generator) mapDocType(txn *cts310.TransactionRecord) int {
	raw, err := strconv.Atoi(strings.TrimSpace(txn.DocType))
	if err != nil {
		raw = 0
	}
	crib := strings.TrimSpace(txn.CustomerCRIB)
	fiscalCredit := crib != "" && crib != g.cfg.DefaultClientCRIB

	switch raw {
	case 1:
		if fiscalCredit {
			return 4
		}
		return 3
	case 0:
		if fiscalCredit {
			return 2
		}
		return 1
	default:
		return 0
	}
}

type bookTotals struct {
	count int

	amount, iva               float64
	ivaTax1, ivaTax2, ivaTax3 float64

	amountFinalConsumer, ivaFinalConsumer float64
	amountFiscal, ivaFiscal               float64
	amountCreditFinal, ivaCreditFinal     float64
	amountCreditFiscal, ivaCreditFiscal   float64
}

func summarize(details []detail) bookTotals {
	t := bookTotals{count: len(details)}
	for _, d := range details {
		t.amount += d.amount
		t.iva += d.iva
		t.ivaTax1 += d.ivaTax1
		t.ivaTax2 += d.ivaTax2
		t.ivaTax3 += d.ivaTax3
		switch d.docType {
		case 1:
			t.amountFinalConsumer += d.amount
			t.ivaFinalConsumer += d.iva
		case 2:
			t.amountFiscal += d.amount
			t.ivaFiscal += d.iva
		case 3:
			t.amountCreditFinal += d.amount
			t.ivaCreditFinal += d.iva
		case 4:
			t.amountCreditFiscal += d.amount
			t.ivaCreditFiscal += d.iva
		}
	}
	return t
}

func nkkBounds(details []detail) (first, last string) {
	var values []string
	for _, d := range details {
		if d.nkk != "" {
			values = append(values, d.nkk)
		}
	}
	if len(values) == 0 {
		return "", ""
	}
	first, last = values[0], values[0]
	for _, v := range values[1:] {
		if v < first {
			first = v
		}
		if v > last {
			last = v
		}
	}
	return first, last
}

func detailLines(details []detail) []string {
	lines := make([]string, len(details))
	for i, d := range details {
		lines[i] = joinFields(d.fields)
	}
	return lines
}

// paymentAmounts places the document total into one of the ten
// payment-method slots, matching on the stored method name.
func paymentAmounts(method string, total float64) []string {
	amounts := make([]string, 10)
	for i := range amounts {
		amounts[i] = "0.00"
	}
	value := formatAmount(total)
	switch m := strings.ToLower(strings.TrimSpace(method)); {
	case strings.Contains(m, "cash"):
		amounts[0] = value
	case strings.Contains(m, "cheque"):
		amounts[1] = value
	case strings.Contains(m, "credit"):
		amounts[2] = value
	case strings.Contains(m, "debit"):
		amounts[3] = value
	case strings.Contains(m, "note"):
		amounts[4] = value
	case strings.Contains(m, "coupon"):
		amounts[5] = value
	default:
		amounts[6] = value
	}
	return amounts
}

func joinFields(fields []string) string {
	return strings.Join(fields, "||")
}

// hashLines is the book's integrity hash: SHA-1 over the lines joined
// with CRLF, exactly as they are later written.
func hashLines(lines []string) string {
	sum := sha1.Sum([]byte(strings.Join(lines, "\r\n")))
	return fmt.Sprintf("%x", sum)
}

func writeBook(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create sales book directory: %w", err)
	}
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write sales book: %w", err)
	}
	return nil
}

func safeFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// formatCode keeps the digits of value zero-padded to length.
func formatCode(value string, length int) string {
	digits := keepDigits(value)
	if digits == "" {
		digits = "0"
	}
	for len(digits) < length {
		digits = "0" + digits
	}
	return digits
}

// formatTaxpayerID is the 14-digit form used for CRIBs and taxpayer
// numbers.
func formatTaxpayerID(value string) string {
	return formatCode(value, 14)
}

// formatNKK keeps the digits of the stored document number padded to
// 16, or stays empty when the record carried none.
func formatNKK(value string) string {
	digits := keepDigits(value)
	if digits == "" {
		return ""
	}
	for len(digits) < 16 {
		digits = "0" + digits
	}
	return digits
}

// formatNKF passes an alphanumeric NKF through untouched and pads a
// purely numeric one to 19 digits.
func formatNKF(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if keepDigits(value) == value {
		for len(value) < 19 {
			value = "0" + value
		}
	}
	return value
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// toCSVDate converts a stored DDMMYYYY (or legacy DDMMYY) date to
// YYYYMMDD; anything else passes through for the auditor to see.
func toCSVDate(printerDate string) string {
	switch len(printerDate) {
	case 8:
		return printerDate[4:8] + printerDate[2:4] + printerDate[0:2]
	case 6:
		return "20" + printerDate[4:6] + printerDate[2:4] + printerDate[0:2]
	}
	return printerDate
}

func toCSVTime(printerTime string) string {
	return printerTime
}

// normalizeDate is the grouping key form of a stored date; unusable
// dates map to "".
func normalizeDate(printerDate string) string {
	if len(printerDate) == 8 || len(printerDate) == 6 {
		return toCSVDate(printerDate)
	}
	return ""
}
