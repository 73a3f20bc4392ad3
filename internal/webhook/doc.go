// Package webhook authenticates and ingests message deliveries.
//
// # Security Model
//
//   - HMAC-SHA256 over the raw body, compared with crypto/subtle before any
//     JSON decoding
//   - Rejections carry no signature details
//   - The shared secret is injected once at construction and never logged
//
// # Delivery Flow
//
//  1. Signature verified (ErrInvalidSignature on mismatch)
//  2. Body decoded and validated: message_id, E.164 from/to, UTC ts, text
//     (ErrMalformedPayload on failure, store untouched)
//  3. Message inserted if absent; a redelivery is reported as a duplicate and
//     succeeds
//
// Redeliveries whose body differs from the stored original are detected by
// BLAKE3 fingerprint and logged.
package webhook
