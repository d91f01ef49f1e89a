// Package auth manages the lifecycle of credentials and tokens: password
// hashing, signed kind-tagged tokens, single-use nonces and the flows built
// on top of them.
//
// Components:
//   - Hasher hashes and verifies passwords with bcrypt. A mismatch is a plain
//     false; only an unparsable stored hash is an error.
//   - TokenCodec signs HS256 tokens carrying subject, kind, issued-at and
//     expiry. The kind is part of the signed payload, so an email confirmation
//     token is never accepted where an access token is expected.
//   - TokenStore is the contract for single-use nonces. Adapters live in
//     store/memory and store/redis; Consume is atomic in both.
//   - SessionIssuer logs in, rotates refresh tokens on every use and revokes
//     them on logout.
//   - AccountLifecycle signs accounts up, confirms emails and resets passwords.
//   - AuthGuard resolves access tokens to account ids without touching the
//     store.
//
// Activity sinks:
//   - ActivitySink receives audit events for signups, logins, refresh
//     rotations, revocations and password resets. Sinks run best-effort
//     (errors are logged) so they never block authentication.
//
// Errors are go-errors sentinels; use KindOf or errors.Is to branch on them.
package auth
