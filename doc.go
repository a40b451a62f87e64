// Package privauth is the account and credential-recovery engine behind the
// Privora mobile app. It covers registration, login, JWT session validation,
// and an OTP-based password reset protocol in which the server owns every
// stage transition: codes are generated server-side, stored only as hashes in
// redis, expire after a fixed TTL, tolerate a bounded number of wrong
// guesses, and are consumed exactly once. The client is treated as untrusted;
// resetting a password without first redeeming a valid code fails no matter
// what the client asserts.
//
// Storage is pluggable through AccountProvider (a postgres implementation
// ships in the postgres subpackage), mail through mail.Mailer, and the HTTP
// surface lives in httpapi. The challenge ledger itself requires redis.
package privauth
