// Package correlation defines the marker embedded in a transaction's data
// field that binds an on-chain transfer to a payment intent.
package correlation

import (
	"bytes"
	"strconv"
)

// MarkerPrefix is the ASCII tag recognised by the settlement path. A data
// payload of "GORR_PAY:<decimal id>" marks a transfer as paying that intent;
// any other payload is an ordinary transfer.
const MarkerPrefix = "GORR_PAY:"

// Encode returns the raw bytes to place in a transaction's data field so the
// transfer settles the intent with the given id.
func Encode(id uint64) []byte {
	return []byte(MarkerPrefix + strconv.FormatUint(id, 10))
}

// Decode parses a transaction data payload. It returns the referenced intent
// id and true when the payload carries a well-formed marker, and (0, false)
// for anything else: empty data, a missing or malformed prefix, or a
// non-numeric suffix. Absence of a marker is a normal outcome for ordinary
// transfers, never an error.
func Decode(data []byte) (uint64, bool) {
	if len(data) == 0 {
		return 0, false
	}
	if !bytes.HasPrefix(data, []byte(MarkerPrefix)) {
		return 0, false
	}
	id, err := strconv.ParseUint(string(data[len(MarkerPrefix):]), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
