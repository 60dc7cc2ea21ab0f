// Package route maps navigable paths to the access class they require.
//
// Classification is static and total: every path maps to exactly one [Class],
// and any path missing from the [Table] requires an authenticated session.
// Sub-paths under an area root inherit the root's class.
package route
