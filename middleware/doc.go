// Package middleware holds the net/http adapters placed in front of the
// recovery endpoints.
//
//   - [ClientIP] resolves the caller address used as the verification
//     throttle actor.
//   - [AccessLog] writes one zap entry per request.
//   - [BearerToken] parses the Authorization header for logout.
//
// The package makes no authentication decisions; logout validity is
// decided by the identity provider behind the Engine.
package middleware
