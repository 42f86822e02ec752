// Package log provides volguard's structured logging, a thin zerolog
// wrapper shared by every component so that supervisor, planner, probe and
// status-endpoint output are consistently timestamped and filterable by
// level and by component/device/vg fields.
package log
