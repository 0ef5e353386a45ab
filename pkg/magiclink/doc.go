// Package magiclink issues and validates single-use passwordless
// login tokens.
//
// A raw token is 32 random bytes, base64url encoded with the mslk_
// prefix. Only its sha256 hash is stored; the raw token exists solely
// in the issuance response handed to the notification gateway.
//
// Issuance is anti-enumeration hardened: an unknown, deleted,
// inactive, or rate-limited recipient receives exactly the same
// response as a successful request. Validation reports distinct
// failure causes, since the presenter already holds the token.
//
// Consumption pairs a conditional "mark used if unused" update with
// the recipient's login bookkeeping in one transaction, so a token can
// never validate twice, even under concurrent attempts.
package magiclink
