package telegram

import (
	"errors"
	"strings"
)

const callbackPrefix = "rv"

var errBadCallback = errors.New("not a review callback")

// encodeCallback builds the callback payload of a review button.
// Telegram caps callback data at 64 bytes; a uuid review id fits comfortably.
func encodeCallback(reviewID string, approve bool) string {
	verdict := "r"
	if approve {
		verdict = "a"
	}
	return callbackPrefix + ":" + verdict + ":" + reviewID
}

// decodeCallback parses a payload produced by encodeCallback
func decodeCallback(data string) (reviewID string, approve bool, err error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != callbackPrefix || parts[2] == "" {
		return "", false, errBadCallback
	}
	switch parts[1] {
	case "a":
		return parts[2], true, nil
	case "r":
		return parts[2], false, nil
	}
	return "", false, errBadCallback
}
