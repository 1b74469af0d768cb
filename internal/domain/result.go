package domain

import (
	"math"
	"time"
)

// ResultStatus represents the outcome of a single sweep case
type ResultStatus string

const (
	// ResultOK means an ignition delay was detected inside the window
	ResultOK ResultStatus = "ok"
	// ResultUndefined means the simulation ran but the ignition event could
	// not be resolved within the simulated window
	ResultUndefined ResultStatus = "undefined"
	// ResultFailed marks a case whose simulation failed (CaseFailure)
	ResultFailed ResultStatus = "failed"
)

// SweepResult is the single row produced for a ParameterCase
type SweepResult struct {
	Case          ParameterCase
	Status        ResultStatus
	IgnitionDelay float64 // [s]; NaN unless Status == ResultOK
	Error         string
	Worker        int
	Elapsed       time.Duration
}

// NewResult builds a result from a detected (or undetected) ignition delay
func NewResult(c ParameterCase, delay float64, defined bool) SweepResult {
	if !defined || math.IsNaN(delay) {
		return SweepResult{Case: c, Status: ResultUndefined, IgnitionDelay: math.NaN()}
	}
	return SweepResult{Case: c, Status: ResultOK, IgnitionDelay: delay}
}

// NewFailure builds a CaseFailure result carrying the failure sentinel
func NewFailure(c ParameterCase, err error) SweepResult {
	r := SweepResult{Case: c, Status: ResultFailed, IgnitionDelay: math.NaN()}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Failed reports whether the case is a CaseFailure
func (r SweepResult) Failed() bool {
	return r.Status == ResultFailed
}

// Defined reports whether the result carries a usable ignition delay
func (r SweepResult) Defined() bool {
	return r.Status == ResultOK
}
