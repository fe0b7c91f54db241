package cts310

// ZReportRecord is one stored Z report decoded from a fiscal memory
// audit reply (0xA2). Values stay as the device sent them; consumers
// parse the amounts they need. AllFields keeps the full positional
// reply for fields the named set does not cover.
type ZReportRecord struct {
	ReportType    string
	ZNumber       string
	Date          string // DDMMYYYY, or DDMMYY on legacy firmware
	Time          string // HHMMSS
	PeriodEndDate string
	StartNKF      string
	EndNKF        string

	SalesCount    string
	RefundCount   string
	VoidCount     string
	TrainingCount string

	TaxTaxable [6]string // tax rates A through F
	TaxTotal   [6]string
	Exempt     string

	DiscountTotal  string
	SurchargeTotal string

	CashTotal  string
	CardTotal  string
	OtherTotal string

	TotalSales   string
	TotalRefunds string
	NetTotal     string

	AllFields []string
}

// IsSales reports whether the record is a sales-day closing report
// rather than a system event.
func (r *ZReportRecord) IsSales() bool {
	return r.ReportType == "20"
}

// TransactionRecord is one stored fiscal document decoded from a
// transaction audit reply (0xA5).
type TransactionRecord struct {
	DocType         string // 0 sale, 1 refund, 2 void, 3 training; >3 system events
	NKF             string
	Date            string
	Time            string
	CustomerCRIB    string
	Operator        string
	ClientField     string
	CustomerName    string
	CustomerAddress string

	Subtotal      string
	Discount      string
	Surcharge     string
	ServiceCharge string
	Tip           string

	TaxABase   string
	TaxAAmount string
	TaxBBase   string
	TaxBAmount string

	PaymentMethod string
	Total         string

	AllFields []string
}

func at(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

func atAmount(fields []string, i int) string {
	if i < len(fields) && fields[i] != "" {
		return fields[i]
	}
	return "0"
}

// minAuditFields is the smallest reply that is a record rather than a
// bare status code.
const minAuditFields = 5

func decodeZReportRecord(fields []string) *ZReportRecord {
	r := &ZReportRecord{
		ReportType:    at(fields, 0),
		ZNumber:       at(fields, 1),
		Date:          at(fields, 2),
		Time:          at(fields, 3),
		PeriodEndDate: at(fields, 4),
		StartNKF:      at(fields, 5),
		EndNKF:        at(fields, 6),

		SalesCount:    atAmount(fields, 7),
		RefundCount:   atAmount(fields, 8),
		VoidCount:     atAmount(fields, 9),
		TrainingCount: atAmount(fields, 10),

		Exempt: atAmount(fields, 23),

		DiscountTotal:  atAmount(fields, 24),
		SurchargeTotal: atAmount(fields, 25),

		CashTotal:  atAmount(fields, 26),
		CardTotal:  atAmount(fields, 27),
		OtherTotal: atAmount(fields, 28),

		TotalSales:   atAmount(fields, 29),
		TotalRefunds: atAmount(fields, 30),
		NetTotal:     atAmount(fields, 31),

		AllFields: fields,
	}
	for i := 0; i < 6; i++ {
		r.TaxTaxable[i] = atAmount(fields, 11+2*i)
		r.TaxTotal[i] = atAmount(fields, 12+2*i)
	}
	return r
}

func decodeTransactionRecord(fields []string) *TransactionRecord {
	return &TransactionRecord{
		DocType:         at(fields, 0),
		NKF:             at(fields, 1),
		Date:            at(fields, 2),
		Time:            at(fields, 3),
		CustomerCRIB:    at(fields, 4),
		Operator:        at(fields, 5),
		ClientField:     at(fields, 6),
		CustomerName:    at(fields, 7),
		CustomerAddress: at(fields, 8),

		Subtotal:      atAmount(fields, 9),
		Discount:      atAmount(fields, 10),
		Surcharge:     atAmount(fields, 11),
		ServiceCharge: atAmount(fields, 12),
		Tip:           atAmount(fields, 13),

		TaxABase:   atAmount(fields, 14),
		TaxAAmount: atAmount(fields, 15),
		TaxBBase:   atAmount(fields, 16),
		TaxBAmount: atAmount(fields, 17),

		PaymentMethod: at(fields, 18),
		Total:         atAmount(fields, 19),

		AllFields: fields,
	}
}
