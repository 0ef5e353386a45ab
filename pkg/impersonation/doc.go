// Package impersonation governs administrator-as-user sessions.
//
// A session is active while it has no terminal state and its start is
// within the configured timeout window; activity is computed from the
// wall clock on every read, so a timed-out session stops working
// immediately even before the sweep assigns its end reason. At most one
// session per admin is ever active: starting a new session closes the
// previous one (reason new_session) in the same transaction as the
// insert.
//
// Eligibility is strict: only non-deleted platform admins may
// impersonate, targets must exist and be active, and platform admins
// can never be impersonated.
package impersonation
