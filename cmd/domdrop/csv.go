package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/domdrop/auctions"
)

// csvRowReader adapts a headered listings CSV to the intake row stream.
// Column names are matched case-insensitively against the aliases each
// marketplace export uses; unrecognized columns are preserved in the
// record payload for downstream enrichment.
type csvRowReader struct {
	r       *csv.Reader
	header  []string
	domain  int
	expires int
	remain  int
	bid     int
	url     int
}

var columnAliases = map[string][]string{
	"domain":  {"domain", "domain_name", "name"},
	"expires": {"expires_at", "expiry", "end_time", "auction_end"},
	"remain":  {"time_remaining", "time_left", "remaining"},
	"bid":     {"current_bid", "bid", "price"},
	"url":     {"listing_url", "url", "link"},
}

func newCSVRowReader(src io.Reader) (*csvRowReader, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cr := &csvRowReader{
		r:      r,
		header: header,
		domain: -1, expires: -1, remain: -1, bid: -1, url: -1,
	}
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		switch {
		case matches(name, columnAliases["domain"]):
			cr.domain = i
		case matches(name, columnAliases["expires"]):
			cr.expires = i
		case matches(name, columnAliases["remain"]):
			cr.remain = i
		case matches(name, columnAliases["bid"]):
			cr.bid = i
		case matches(name, columnAliases["url"]):
			cr.url = i
		}
	}
	if cr.domain < 0 {
		return nil, fmt.Errorf("csv has no domain column (header: %v)", header)
	}
	return cr, nil
}

func matches(name string, aliases []string) bool {
	for _, a := range aliases {
		if name == a {
			return true
		}
	}
	return false
}

func (cr *csvRowReader) Next() (*auctions.RawRow, error) {
	rec, err := cr.r.Read()
	if err != nil {
		return nil, err // io.EOF terminates the stream
	}

	row := &auctions.RawRow{Domain: cr.field(rec, cr.domain)}

	if v := cr.field(rec, cr.expires); v != "" {
		row.ExpiresAt = parseTimestamp(v)
	}
	if v := cr.field(rec, cr.remain); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			row.TimeRemaining = d
		}
	}
	if v := cr.field(rec, cr.bid); v != "" {
		if b, err := strconv.ParseFloat(v, 64); err == nil {
			row.CurrentBid = &b
		}
	}
	row.ListingURL = cr.field(rec, cr.url)

	// Carry the untouched row as payload for downstream enrichment.
	payload := make(map[string]string, len(cr.header))
	for i, col := range cr.header {
		if i < len(rec) {
			payload[col] = rec[i]
		}
	}
	if data, err := json.Marshal(payload); err == nil {
		row.PayloadJSON = string(data)
	}
	return row, nil
}

func (cr *csvRowReader) field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

// parseTimestamp accepts Unix seconds, Unix milliseconds or RFC 3339 and
// returns Unix milliseconds, zero when unparseable.
func parseTimestamp(v string) int64 {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		// 1e12 ms is 2001; epoch seconds stay far below that for
		// thousands of years, so the split is unambiguous.
		if n >= 1_000_000_000_000 {
			return n
		}
		return n * 1000
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UnixMilli()
	}
	return 0
}
