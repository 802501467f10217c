// Package capability seals a selector/token pair into an opaque,
// client-held token so a password reset can continue across two stateless
// requests.
//
// Tokens are compact JWE objects using direct key agreement and
// AES-256-GCM, so tampering is detected by the authentication tag. The
// server keeps no record of issued tokens and tokens carry no expiry: the
// identity provider's own rules on the underlying pair are the security
// boundary.
package capability
