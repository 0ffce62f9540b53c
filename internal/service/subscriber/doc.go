// Package subscriber manages a profile's subscriber list: public sign-ups
// from subscription blocks, manual entries by the owner, deactivation and
// removal.
package subscriber
