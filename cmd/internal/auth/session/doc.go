// Package session implements sessiond's bearer session tokens.
//
// A token is a signed claim (email, issue time, random nonce) produced by a
// Codec: HMAC-SHA256 over a compact payload by default, or PASETO v4.public.
// Every token is backed by a server-side Record keyed by a keyed hash of the
// token value, so expiry and revocation are enforced on each validation.
//
// Records live in a Store: in-process memory, Postgres (sessiond.sessions) or
// Redis with native key expiry. The plain token is never persisted.
//
// Transport concerns (cookies, HTTP handlers) live in the cookie and api packages.
package session
