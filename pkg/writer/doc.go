// Package writer is an optional synthetic load generator: it fills a
// working directory with fixed-size files on a timer so the supervisor
// loop has something to react to during local exercising. It is not
// part of the monitored control plane and ships disabled by default.
package writer
