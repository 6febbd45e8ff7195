// Package notifier delivers chat messages for the poller.
//
// Delivery is synchronous and makes one attempt: a failure goes back to the
// caller, which decides what to do with the cursor. Sends are rate limited
// with a token bucket. Error relays are deduplicated inside a time window,
// optionally across restarts through storage. Verdicts are never
// deduplicated.
//
// The service keeps a short in-memory history for the /status command and
// publishes notifier.sent, notifier.failed and notifier.deduped events.
package notifier
