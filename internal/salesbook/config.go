package salesbook

// Config carries the retailer identity stamped on every book line and
// the layout of the export tree.
type Config struct {
	ExportRoot      string `json:"exportRoot"`
	TaxpayerID      string `json:"taxpayerId"`
	BranchCode      string `json:"branchCode"`
	POSNumber       string `json:"posNumber"`
	FiscalDeviceID  string `json:"fiscalDeviceId"`
	ProgramProvider string `json:"programProvider"`
	SoftwareVersion string `json:"softwareVersion"`

	// TipLegal is the regulator's legal-tip code carried on every line.
	TipLegal string `json:"tipLegal,omitempty"`

	// DefaultClientCRIB marks anonymous final-consumer documents; a
	// transaction whose CRIB differs is classified as fiscal credit.
	DefaultClientCRIB string `json:"defaultClientCrib,omitempty"`

	DailyFilename   string `json:"dailyFilename,omitempty"`
	MonthlyFilename string `json:"monthlyFilename,omitempty"`

	// OmitHash drops the SHA-1 integrity field; OmitDetails drops the
	// per-transaction lines. Both are included unless switched off.
	OmitHash    bool `json:"omitHash,omitempty"`
	OmitDetails bool `json:"omitDetails,omitempty"`
}

// ApplyDefaults fills every unset field with its working default.
func (c *Config) ApplyDefaults() {
	if c.ExportRoot == "" {
		c.ExportRoot = "salesbook"
	}
	if c.TipLegal == "" {
		c.TipLegal = "2"
	}
	if c.DefaultClientCRIB == "" {
		c.DefaultClientCRIB = "1000000000"
	}
	if c.DailyFilename == "" {
		c.DailyFilename = "SB%s.001"
	}
	if c.MonthlyFilename == "" {
		c.MonthlyFilename = "SB%d%02d.001"
	}
}
