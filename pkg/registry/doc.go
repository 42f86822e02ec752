// Package registry is volguard's in-memory table of monitored volumes. It
// owns the only mutex that guards VolumeEntry state, bounds the table at a
// fixed capacity, and hands out deep copies to readers so callers never
// race the supervisor's writes.
package registry
