// Package password hashes and verifies user passwords with Argon2id.
//
// Hashes use the PHC string format
// ($argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<key>).
// Stored hashes are untrusted input: Verify parses them strictly and refuses
// parameters far above the configured cost.
package password
