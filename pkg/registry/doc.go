// Package registry tracks nodes, the role catalog, assignments, and code
// sources. One code source is active at a time; activating another
// deactivates the rest. Assignment uniqueness is enforced per (node, role)
// pair.
package registry
