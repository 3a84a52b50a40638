// Package token provides the keyed hashing primitives behind session credentials.
//
// It is the single source of truth for how a bearer value is turned into a
// server-side lookup key and how claim signatures are computed.
//
// Modes:
// - Development: SHA-256(token) when no key is configured.
// - Production: HMAC-SHA256 with purpose-derived subkeys of SESSIOND_TOKEN_HMAC_KEY.
//
// Policy:
//   - If SESSIOND_REQUIRE_TOKEN_HMAC=true, callers MUST enforce a minimum key size
//     (MinHMACKeyBytes) and MUST NOT fall back to SHA-256.
package token
