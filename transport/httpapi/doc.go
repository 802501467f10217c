// Package httpapi is the chi-based HTTP boundary of the recovery flows.
//
// Every route is a JSON POST under /auth. Successful replies use
// {"message": ...} or, for verify-reset-code, {"payload": ...}. Failures
// use {"serverError": ..., "code": kind} where each error kind maps to a
// single HTTP status (see [StatusOf]). Error text from the Engine is never
// written to the client.
package httpapi
