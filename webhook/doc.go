// Package webhook delivers runtime events to external HTTP endpoints. The
// Dispatcher keeps an in-memory FIFO queue drained by a worker loop whose
// in-flight request count is bounded by a weighted semaphore. Failed
// deliveries are retried with exponential backoff up to a per-endpoint bound
// and then dropped; delivery failures never propagate to the code that
// triggered the notification.
//
// Payloads are JSON; endpoints configured with a secret get an
// X-Webhook-Signature header carrying the hex HMAC-SHA256 of the body.
package webhook
