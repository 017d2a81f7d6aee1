package reconcile

import (
	"errors"

	"github.com/kingdavid6336/stellar-anchor/internal/chain"
)

// ErrNotFinal is the job-level outcome when at least one output has not
// reached finality yet. It is an expected control outcome: the queue
// redelivers the job and a later run finds the output confirmed.
var ErrNotFinal = errors.New("not final")

// ErrUnmappedAddress marks an output whose inbound address has no mapping.
// This is a data integrity problem and is surfaced, never skipped.
var ErrUnmappedAddress = errors.New("unmapped address")

// Retryable reports whether a ProcessJob error is an expected, benign
// outcome that only needs redelivery (as opposed to a processing failure).
func Retryable(err error) bool {
	return errors.Is(err, ErrNotFinal) || errors.Is(err, chain.ErrTxNotFound)
}
