// Package domain defines the core types of the profile mailer: subscribers,
// campaigns and their per-recipient send records, the credentials a send
// uses, and the error taxonomy shared by services and handlers.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Validation methods are allowed (they're pure functions on the type)
package domain
