// Package guard rate-limits login submissions for one browser client.
//
// A Guard is Open until MaxAttempts consecutive provider rejections, then
// Locked for CooldownSeconds. While Locked, submissions are refused locally
// and never reach the identity provider. The failure count and lockout
// deadline are persisted under the keys "failureCount" and "lockoutUntil"
// (Unix milliseconds) so a restart resumes the same state. Signing out does
// not touch the guard.
package guard
