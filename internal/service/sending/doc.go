// Package sending is the bulk send pipeline: it validates a composed
// message, resolves subscriber ids into recipients, dispatches through a
// Transport in paced concurrent windows and reconciles the campaign ledger.
package sending
