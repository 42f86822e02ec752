// Package types holds volguard's core value objects: the per-device
// VolumeEntry the registry tracks, the three-variant classification State,
// and the process-wide Stats counters. It has no behavior of its own and
// imports nothing but the standard library, so every other package can
// depend on it without risk of an import cycle.
package types
