// Package identity defines the authenticated principal and the account / organization
// records behind it.
//
// An Identity is derived from an email address alone: the id is the normalised email
// and the display name is its local part. Nothing about the principal is stored
// independently of the email; accounts only add an optional password hash, and
// organizations group identities for multi-tenant screens.
package identity
