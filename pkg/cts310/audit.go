package cts310

import (
	"fmt"
	"time"

	"github.com/juju/loggo"
)

var auditLog = loggo.GetLogger("cts310.audit")

// sentinelNoMoreRecords is the device's "no more records" code; it ends
// an audit loop normally.
const sentinelNoMoreRecords = "237"

// maxAuditRecords bounds one audit session against a device that never
// signals the end of its data.
const maxAuditRecords = 10000

// MemoryReader streams historical Z reports and transactions out of
// the printer's audit memory. One reader drives one device; the caller
// serializes sessions (see internal/hub).
type MemoryReader struct {
	transport Transport
}

func NewMemoryReader(transport Transport) *MemoryReader {
	return &MemoryReader{transport: transport}
}

func (m *MemoryReader) send(f Frame) (Response, Verdict, error) {
	auditLog.Debugf("tx %s", f.Hex())
	resp, err := m.transport.Send(f)
	if err != nil {
		auditLog.Debugf("tx failed: %v", err)
		return nil, NoResponse, err
	}
	auditLog.Debugf("rx %s", resp.Hex())
	return resp, resp.Classify(), nil
}

// endSession clears the device's iteration state (0xA7). It runs both
// before a fresh init, to flush a stale session, and after every loop
// regardless of outcome.
func (m *MemoryReader) endSession() {
	if _, verdict, err := m.send(NewFrame(cmdAuditEnd)); err != nil || verdict != Success {
		auditLog.Warningf("audit end not acknowledged")
	}
}

// ReadZReportsByDate enumerates the stored Z reports whose date falls
// in [start, end]. An initialization rejection means the range holds
// nothing and yields an empty slice.
func (m *MemoryReader) ReadZReportsByDate(start, end time.Time) ([]*ZReportRecord, error) {
	startStr := start.Format(dateLayout)
	endStr := end.Format(dateLayout)
	auditLog.Infof("reading Z reports %s..%s", startStr, endStr)

	m.endSession()

	_, verdict, err := m.send(NewFrame(cmdAuditZInit, startStr, endStr))
	if err != nil {
		return nil, fmt.Errorf("init fiscal memory read: %w", err)
	}
	if verdict != Success {
		auditLog.Infof("no Z report data for %s..%s", startStr, endStr)
		m.endSession()
		return nil, nil
	}

	var records []*ZReportRecord
	for len(records) < maxAuditRecords {
		resp, verdict, err := m.send(NewFrame(cmdAuditZNext))
		if err != nil {
			auditLog.Errorf("Z report read failed: %v", err)
			break
		}
		if verdict != Success {
			auditLog.Warningf("Z report read stopped on %s reply", verdict)
			break
		}

		fields, err := resp.Fields()
		if err != nil {
			auditLog.Errorf("Z report reply undecodable: %v", err)
			break
		}
		if code, bare := statusOnly(resp, fields); bare {
			if code == sentinelNoMoreRecords {
				auditLog.Infof("no more Z reports, read %d", len(records))
			} else {
				auditLog.Warningf("Z report read returned code %s", code)
			}
			break
		}

		record := decodeZReportRecord(fields)
		records = append(records, record)
		auditLog.Debugf("read Z report #%d: Z%s", len(records), record.ZNumber)
	}

	m.endSession()
	auditLog.Infof("read %d Z report(s)", len(records))
	return records, nil
}

// ReadTransactionsByDate enumerates the stored fiscal documents whose
// date falls in [start, end]. Unlike the Z report loop, the device
// signals end-of-data here with a rejected get-next.
func (m *MemoryReader) ReadTransactionsByDate(start, end time.Time) ([]*TransactionRecord, error) {
	startStr := start.Format(dateLayout)
	endStr := end.Format(dateLayout)
	auditLog.Infof("reading transactions %s..%s", startStr, endStr)

	m.endSession()

	_, verdict, err := m.send(NewFrame(cmdAuditTxnInit, startStr, endStr))
	if err != nil {
		return nil, fmt.Errorf("init transaction memory read: %w", err)
	}
	if verdict != Success {
		auditLog.Infof("no transaction data for %s..%s", startStr, endStr)
		m.endSession()
		return nil, nil
	}

	var records []*TransactionRecord
	for len(records) < maxAuditRecords {
		resp, verdict, err := m.send(NewFrame(cmdAuditTxnNext))
		if err != nil {
			auditLog.Errorf("transaction read failed: %v", err)
			break
		}
		if verdict == Rejected {
			auditLog.Infof("no more transactions, read %d", len(records))
			break
		}
		if verdict != Success {
			auditLog.Warningf("transaction read stopped on %s reply", verdict)
			break
		}

		fields, err := resp.Fields()
		if err != nil {
			auditLog.Errorf("transaction reply undecodable: %v", err)
			break
		}
		if code, bare := statusOnly(resp, fields); bare {
			if code == sentinelNoMoreRecords {
				auditLog.Infof("no more transactions, read %d", len(records))
			} else {
				auditLog.Warningf("transaction read returned code %s", code)
			}
			break
		}

		records = append(records, decodeTransactionRecord(fields))
		if len(records)%100 == 0 {
			auditLog.Debugf("read %d transactions...", len(records))
		}
	}

	m.endSession()
	auditLog.Infof("read %d transaction(s)", len(records))
	return records, nil
}

// statusOnly reports whether the reply is a status code rather than a
// record: no field separator at all, or fewer fields than the minimum
// record shape. The code is the first (and usually only) field.
func statusOnly(resp Response, fields []string) (string, bool) {
	if !resp.HasSeparator() {
		code := "unknown"
		if len(fields) > 0 && fields[0] != "" {
			code = fields[0]
		}
		return code, true
	}
	if len(fields) < minAuditFields {
		auditLog.Warningf("short audit reply: %d fields", len(fields))
		code := "unknown"
		if len(fields) > 0 && fields[0] != "" {
			code = fields[0]
		}
		return code, true
	}
	return "", false
}
