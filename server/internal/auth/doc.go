// Package auth provides authentication middleware for the qualitypulse server.
//
// APIKey(mode, header, key) returns HTTP middleware that validates the API key
// carried in the named request header. It guards the measurement write
// endpoint the collector posts to.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or absent,
// the middleware answers 401 immediately.
package auth
