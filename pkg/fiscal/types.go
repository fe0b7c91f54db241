package fiscal

// Unit names accepted by the device for the item measurement field.
const (
	UnitUnits  = "Units"
	UnitKilos  = "Kilos"
	UnitGrams  = "Grams"
	UnitPounds = "Pounds"
	UnitBoxes  = "Boxes"
)

// Item is one receipt line. Amounts are plain decimal values; the
// driver converts them to the device's implied-decimal wire form.
type Item struct {
	Description     string  `json:"description"`
	CustomerNote    string  `json:"customerNote,omitempty"`
	Quantity        float64 `json:"quantity"`
	UnitPrice       float64 `json:"unitPrice"`
	Unit            string  `json:"unit"`
	VATPercent      float64 `json:"vatPercent"`
	TaxExempt       bool    `json:"taxExempt,omitempty"`
	DiscountPercent float64 `json:"discountPercent,omitempty"`
	Void            bool    `json:"void,omitempty"`
}

// Payment settles part of the document total. Method is the device
// payment-method code ("01" cash, "02" card, ... "10" other).
type Payment struct {
	Method      string  `json:"method"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
}

// AdjustmentKind selects the device operation for an Adjustment.
type AdjustmentKind int

const (
	Discount AdjustmentKind = iota
	Surcharge
	ServiceCharge
)

// Adjustment is a document-level discount, surcharge or service charge.
// Either Amount or Percent is set, not both.
type Adjustment struct {
	Kind        AdjustmentKind `json:"kind"`
	Description string         `json:"description"`
	Amount      float64        `json:"amount,omitempty"`
	Percent     float64        `json:"percent,omitempty"`
}

// Customer identifies the buyer on fiscal-credit documents. A zero
// value or one matching the configured defaults means final consumer.
type Customer struct {
	Name string `json:"name,omitempty"`
	CRIB string `json:"crib,omitempty"`
}

// PrintRequest describes one fiscal document to print.
type PrintRequest struct {
	Items         []Item       `json:"items"`
	Payments      []Payment    `json:"payments"`
	Tips          []Payment    `json:"tips,omitempty"`
	ServiceCharge *Adjustment  `json:"serviceCharge,omitempty"`
	Discount      *Adjustment  `json:"discount,omitempty"`
	Surcharge     *Adjustment  `json:"surcharge,omitempty"`
	Comment       string       `json:"comment,omitempty"`
	Refund        bool         `json:"refund,omitempty"`
	ReceiptNumber string       `json:"receiptNumber,omitempty"`
	POSName       string       `json:"posName,omitempty"`
	Customer      Customer     `json:"customer,omitempty"`
	// Sequential drives NKF generation. When zero the driver derives it
	// from the receipt number's trailing digits.
	Sequential int `json:"sequential,omitempty"`
}

// PrintResult reports the outcome of a print operation.
type PrintResult struct {
	DocumentNumber string `json:"documentNumber,omitempty"`
	NKF            string `json:"nkf,omitempty"`
	DocumentType   int    `json:"documentType,omitempty"`
}

// ReportResult reports the outcome of an iterated report run.
type ReportResult struct {
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

// Status is a point-in-time snapshot of the device.
type Status struct {
	Connected    bool   `json:"connected"`
	Port         string `json:"port,omitempty"`
	State        string `json:"state,omitempty"`
	StateCode    string `json:"stateCode,omitempty"`
	ResponseCode string `json:"responseCode,omitempty"`
	Online       bool   `json:"online"`
	CoverOpen    bool   `json:"coverOpen"`
	PaperLow     bool   `json:"paperLow"`
}
