// Package notifier delivers operator notifications for significant bot events.
//
// A Sink posts one message per event and remembers the id of the last one so
// a follow-up Amend can enrich it (post a challenge alert, then edit in the
// code once it is known).
//
// # Delivery
//
// Delivery is best-effort. Each call is bounded by a timeout, rate limited and
// retried with jittered backoff; failures are logged and never returned to the
// caller. The transport is any kit.Sender (the Telegram adapter in production).
//
// # History
//
// The sink keeps a small in-memory history of delivered texts for /status.
package notifier
