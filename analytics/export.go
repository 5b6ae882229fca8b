package analytics

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/vitwit/payless/types"
)

var csvHeader = []string{
	"ID",
	"Timestamp",
	"Date",
	"Endpoint",
	"Method",
	"Status",
	"Payment Required",
	"Payment Provided",
	"Payment Valid",
	"Amount",
	"Chain",
	"Wallet Address",
	"Response Time (ms)",
	"Error",
}

// WriteCSV writes events as CSV with a header row. Timestamps are written
// both as unix milliseconds and RFC 3339.
func WriteCSV(w io.Writer, events []types.AnalyticsEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i := range events {
		e := &events[i]
		amount := ""
		if e.Amount != nil {
			amount = e.Amount.String()
		}
		row := []string{
			e.ID,
			strconv.FormatInt(e.Timestamp.UnixMilli(), 10),
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.Endpoint,
			e.Method,
			strconv.Itoa(e.Status),
			strconv.FormatBool(e.PaymentRequired),
			strconv.FormatBool(e.PaymentProvided),
			strconv.FormatBool(e.PaymentValid),
			amount,
			string(e.Chain),
			e.Wallet,
			strconv.FormatInt(e.ResponseTimeMs, 10),
			e.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
