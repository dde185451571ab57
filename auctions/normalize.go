package auctions

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// NormalizeDomain canonicalizes a listed domain for use as the dedup key:
// lowercase, scheme and www. prefix stripped, path/port dropped, unicode
// labels converted to punycode. Returns ErrMissingDomain when nothing
// usable remains.
func NormalizeDomain(raw string) (string, error) {
	d := strings.TrimSpace(strings.ToLower(raw))
	if d == "" {
		return "", ErrMissingDomain
	}

	// Strip scheme if a URL was pasted where a domain belongs.
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	d = strings.TrimPrefix(d, "www.")

	// Drop path, query, port.
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.IndexByte(d, ':'); i >= 0 {
		d = d[:i]
	}
	d = strings.Trim(d, ".")
	if d == "" || !strings.Contains(d, ".") {
		return "", ErrMissingDomain
	}

	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMissingDomain, raw, err)
	}
	return ascii, nil
}

// NormalizeRow turns one raw marketplace row into a staged record. The
// expiry must be resolvable: either the row carries an absolute timestamp,
// or a relative time-remaining anchored at the row's observation time.
// Rows that fail either contract are rejected with a sentinel error; the
// intake counts them and moves on.
func NormalizeRow(row *RawRow, site string, now time.Time) (*Staged, error) {
	domain, err := NormalizeDomain(row.Domain)
	if err != nil {
		return nil, err
	}

	expires := row.ExpiresAt
	if expires <= 0 {
		if row.TimeRemaining <= 0 {
			return nil, ErrMissingExpiry
		}
		anchor := row.ObservedAt
		if anchor <= 0 {
			anchor = now.UnixMilli()
		}
		expires = anchor + row.TimeRemaining.Milliseconds()
	}

	return &Staged{
		Domain:      domain,
		Site:        site,
		ExpiresAt:   expires,
		CurrentBid:  row.CurrentBid,
		ListingURL:  strings.TrimSpace(row.ListingURL),
		PayloadJSON: row.PayloadJSON,
	}, nil
}
