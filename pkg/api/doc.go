// Package api exposes the control plane over REST.
//
// Handlers translate the typed error taxonomy to HTTP status codes:
// validation 400, not-found 404, conflict 409, token errors 401. Token
// errors reveal only invalid versus expired, never which credential was
// targeted.
package api
