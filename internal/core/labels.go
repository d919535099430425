// Package core defines core types.
package core

// Label names shared by metrics and reporter events.
const (
	LabelNetwork = "network"
	LabelFamily  = "family"
	LabelResult  = "result"
	LabelReason  = "reason"
)

// Result label values for polls and reloads.
const (
	ResultOK    = "ok"
	ResultIdle  = "idle"
	ResultError = "error"
)
