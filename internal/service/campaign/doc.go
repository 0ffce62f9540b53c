// Package campaign is the campaign ledger: the in-flight campaign row a
// send creates, its per-recipient SentEmail records, the verified final
// counts, and the owner's history views.
//
// Repository implementations live in repository/postgres/.
package campaign
