// Package logs reads the daemon log file for `wedge logs`.
//
// Last returns the final lines with bounded memory. Follow then streams
// complete lines appended after an offset, woken by fsnotify, and restarts
// from the top when the file is truncated or replaced.
package logs
