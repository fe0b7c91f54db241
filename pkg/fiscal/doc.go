// Package fiscal defines the printer-neutral model of fiscal documents
// and the interface every supported fiscal printer driver implements.
package fiscal
