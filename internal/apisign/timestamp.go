package apisign

import (
	"strconv"
	"time"
)

// CheckTimestamp validates a caller timestamp against now and returns it in
// whole seconds. The raw value must be all decimal digits; a 13 digit value
// is taken as milliseconds. After conversion exactly 10 digits must remain.
// The request is fresh iff timestamp <= now <= timestamp+window, so a
// timestamp ahead of the server clock is rejected as expired.
func CheckTimestamp(raw string, now time.Time, window time.Duration) (int64, error) {
	if !isDigits(raw) {
		return 0, ErrTimestampFormat.Derive("malformed timestamp: "+raw).WithContext("timestamp", raw)
	}

	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrTimestampFormat.Derive("malformed timestamp: "+raw).WithContext("timestamp", raw)
	}

	if digitCount(ts) == 13 {
		ts /= 1000
	}
	if digitCount(ts) != 10 {
		return 0, ErrTimestampFormat.Derive("malformed timestamp: "+strconv.FormatInt(ts, 10)).
			WithContext("timestamp", ts)
	}

	nowSec := now.Unix()
	windowSec := int64(window / time.Second)
	if ts <= nowSec && nowSec <= ts+windowSec {
		return ts, nil
	}

	return ts, ErrRequestExpired.Derive("request timestamp outside the accepted window").
		WithContext("timestamp", ts).
		WithContext("now", nowSec).
		WithContext("expiration", windowSec)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// digitCount counts the decimal digits of a non-negative integer, so leading
// zeros in the raw value do not count.
func digitCount(n int64) int {
	return len(strconv.FormatInt(n, 10))
}
