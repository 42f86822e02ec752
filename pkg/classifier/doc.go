// Package classifier turns a volume's usage history into one of three
// states. Classify is pure: same inputs, same output, no logging, no
// registry access, so it is trivial to exercise from a table test.
package classifier
