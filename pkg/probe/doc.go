// Package probe is a pure query layer over pkg/executor: it enumerates
// mount points and usage, resolves a device to its volume group and
// logical volume, and reports free space in bytes, all by shelling out to
// the standard LVM and filesystem tools and parsing their plain-text
// output. It never mutates anything.
package probe
