// Package authstate keeps a process-local mirror of the session state held by
// a hosted identity platform, resolves application-level role assignments for
// the signed-in identity, and gates routes on the result.
//
// Session lifecycle:
//   - Manager owns the mirror. It is constructed explicitly with a
//     SessionStore (the platform client) and a Users repository, seeded from
//     the store's current session on Start, and updated by a single consumer
//     goroutine reading the store's session-change channel. Close releases the
//     subscription; late events never mutate a closed Manager.
//   - The first time a signed-in session is observed for an identity with no
//     user record, the Manager bootstraps one inside a transaction: the very
//     first record in the store receives the admin role, every later one the
//     pending role until an admin assigns something real.
//
// Role resolution:
//   - Roles live in an application-level users table, separate from the
//     platform's own accounts. A failed or empty lookup degrades to an empty
//     RoleSet (least privilege) and never aborts the session flow. The admin
//     role satisfies every check.
//
// Route guarding:
//   - Guard evaluates the current State against a per-route allowed-role list
//     and either renders a waiting placeholder (state still loading), redirects
//     to the login entry point, redirects to the default landing page, or lets
//     the route through.
package authstate
