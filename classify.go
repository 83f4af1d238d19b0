package e2eecore

import (
	"strconv"

	"e2eecore/internal/coreerr"
	"e2eecore/internal/securitylog"
)

// classify maps a coreerr.Kind onto the closest securitylog.EventKind for
// the events ReceiveMessage reports.
func classify(err error) securitylog.EventKind {
	switch coreerr.KindOf(err) {
	case coreerr.KindFreshness:
		return securitylog.EventTimestampFailure
	case coreerr.KindOrdering:
		return securitylog.EventSeqMismatch
	case coreerr.KindReplay:
		return securitylog.EventReplayAttempt
	case coreerr.KindSignature:
		return securitylog.EventInvalidSignature
	case coreerr.KindIntegrity:
		return securitylog.EventDecryptionError
	default:
		return securitylog.EventMessageDropped
	}
}

func itoa(v uint64) string {
	return strconv.FormatUint(v, 10)
}
