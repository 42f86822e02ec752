// Package supervisor runs the periodic scan loop: every tick it probes
// mounted filesystems, updates the registry, classifies each monitored
// volume, and enqueues remediation for anything HUNGRY. It never extends
// or shrinks a volume itself — that is the planner's job.
package supervisor
