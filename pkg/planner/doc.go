// Package planner is the remediation side of volguard: it drains devices
// from the request queue and, one at a time under a host-wide advisory
// lock, resolves, shrinks sibling donors, annexes a fallback physical
// volume, and finally extends the hungry logical volume.
package planner
