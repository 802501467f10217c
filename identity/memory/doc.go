// Package memory is a reference identity provider that keeps accounts in
// process memory. It backs the recoveryd daemon in development and the
// end-to-end tests.
//
// Selector/token pairs are random, stored as SHA-256 digests, expire after
// a configurable TTL and are single use. Passwords are argon2id hashes.
// Sessions are signed tokens carrying a per-user version; logout and
// password reset bump the version.
//
// Nothing survives a restart. Production deployments plug their own
// provider into the Engine.
package memory
