// Package identity defines the identity provider used to verify bearer tokens
// and to manage accounts and their custom claims.
//
// Two verifiers are available. LocalProvider keeps accounts in the document
// store, hashes secrets with bcrypt and issues HS256 tokens. OIDCVerifier
// accepts ID tokens from an external OpenID Connect issuer and links them to
// directory accounts by verified email.
//
// CachedProvider caches claims lookups for a short TTL, and Instrument adds
// metrics and spans to any Provider.
package identity
