// Package syncqueue implements the durable outbound queue for incident
// reports.
//
// A report is accepted while offline and persisted as pending before
// Enqueue returns. Flush delivers pending and failed entries to the remote
// service in enqueue order; delivered entries leave the queue, failed ones
// stay with their attempt count and failure kind.
//
// # Delivery guarantees
//
//   - At least once. A crash between a successful submit and the store
//     update leaves the entry in_flight on disk; Load reverts it to pending
//     and it is resubmitted with the same report ID. The remote is expected
//     to treat the ID as an idempotency key.
//   - Never twice concurrently. Flush claims entries by marking them
//     in_flight under the queue lock before any submit starts; concurrent
//     flushes skip claimed entries.
//   - FIFO dispatch. Submits are dispatched in Seq order. With the default
//     concurrency of one, delivery is strictly sequential; above one,
//     submits overlap and completion order is not guaranteed.
//
// # Failure handling
//
// Submit errors are classified with the fault package:
//
//   - fault.KindNetwork → FailureNetwork, retried on the next flush
//   - fault.KindValidation → FailureRejected, held until Retry
//   - anything else → FailureUnknown, retried on the next flush
//
// An optional Backoff delays retries of failed entries and caps the number
// of automatic attempts. The zero Backoff retries on every flush.
package syncqueue
