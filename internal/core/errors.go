// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors, wrapped with %w at the call site.
var (
	// Wire decoding errors
	ErrInsufficientData = errors.New("stallwatch: insufficient data for a netlink header")
	ErrDumpDone         = errors.New("stallwatch: dump done")
	ErrMalformed        = errors.New("stallwatch: malformed sock_diag message")

	// Tracker errors
	ErrNetworkNotFound = errors.New("stallwatch: no fwmark rule for network")
	ErrUnsupported     = errors.New("stallwatch: tcp info parsing unsupported")

	// Reporter errors
	ErrReporterInitFailed = errors.New("stallwatch: reporter init failed")

	// Configuration errors
	ErrConfigInvalid = errors.New("stallwatch: invalid configuration")
)
