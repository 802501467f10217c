// Package jwt issues and verifies the session tokens handed out at login.
// Tokens carry a session version; the identity provider revokes all of a
// user's sessions by bumping it.
package jwt
