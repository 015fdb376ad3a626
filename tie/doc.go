// Package tie computes gravity ties for shipboard gravimeter calibration.
//
// It converts land meter counts through a calibration table, corrects a land
// tie for linear meter drift, smooths the ship meter's gravity record with a
// zero-phase Blackman low-pass filter and derives the meter bias at the
// water line. Every function is synchronous and keeps no state between calls.
//
// Missing inputs are reported with ErrNotReady, a gravity record that does
// not span the water height readings with ErrInsufficientCoverage. Contract
// violations such as an empty calibration table panic.
package tie
