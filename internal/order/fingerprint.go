package order

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint identifies "the same order" for duplicate detection.
type Fingerprint string

// Fingerprint hashes symbol, action, quantity, order type and limit price.
// The stop price is deliberately not part of the digest: two STOP_LIMIT orders
// differing only in their trigger are treated as the same order.
func (r Request) Fingerprint() Fingerprint {
	limit := "none"
	if lp, ok := r.LimitPrice(); ok {
		// normalized so 150, 150.0 and 150.00 hash the same
		limit = lp.String()
	}
	raw := strings.Join([]string{
		r.symbol,
		string(r.action),
		strconv.FormatInt(r.quantity, 10),
		string(r.orderType),
		limit,
	}, "|")
	h := sha256.Sum256([]byte(raw))
	return Fingerprint(hex.EncodeToString(h[:]))
}

// Short is a log-friendly prefix of the fingerprint.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}
