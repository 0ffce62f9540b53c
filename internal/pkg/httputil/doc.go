// Package httputil holds the JSON response and request helpers shared by
// every handler, so error envelopes look the same on all endpoints.
package httputil
