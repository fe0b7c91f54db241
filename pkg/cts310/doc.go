// Package cts310 drives the CTS310ii fiscal printer over its serial
// protocol: STX-framed commands with FS-separated ASCII fields, ACK/NAK
// terminated replies.
//
// The package splits into four layers. protocol.go builds frames and
// classifies replies; transport.go moves bytes over the serial port;
// driver.go implements the fiscal.Printer lifecycle, including the
// document state machine whose every failure path routes through a
// cancel; audit.go streams historical Z reports and transactions out of
// the device's fiscal memory for sales book exports.
package cts310
