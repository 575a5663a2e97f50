// Package permission implements the static role/permission table.
//
// # Model
//
// Permission names are registered into a [Registry] that assigns each a bit
// in a fixed-width [Mask] (64, 128, 256 or 512 bits). Every role gets a mask
// with the bits of the permissions it holds, so a check is a single bit test.
// A separate rank-ordered [Hierarchy] answers coarse "at least manager"
// questions and is never consulted by [Table.Allowed].
//
// A [Table] is built once from a [Definition] and frozen. There is no
// mutation path after Build; changing the table means a redeploy.
//
// # What this package must NOT do
//
//   - Import goTrust or session.
//   - Evaluate ownership. Ownership is a caller-supplied predicate handled by
//     the engine so that it is audited as its own branch.
package permission
