package usecase

import "time"

type Options struct {
	MaxProofAttempts        int
	MaxProofTextLen         int
	RevivalResetPenalty     float64
	RevivalChallengePenalty float64
	ExpiryWarningWindow     time.Duration
	NotifyConcurrency       int
	// SweepBatchSize bounds each page of overdue redemptions read by AutoExpire.
	SweepBatchSize int
	// Location is the calendar the daily evaluation runs in.
	Location *time.Location
}

func DefaultOptions() Options {
	return Options{
		MaxProofAttempts:        3,
		MaxProofTextLen:         2000,
		RevivalResetPenalty:     0.5,
		RevivalChallengePenalty: 0.8,
		ExpiryWarningWindow:     3 * time.Hour,
		NotifyConcurrency:       8,
		SweepBatchSize:          500,
		Location:                time.UTC,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxProofAttempts <= 0 {
		o.MaxProofAttempts = d.MaxProofAttempts
	}
	if o.MaxProofTextLen <= 0 {
		o.MaxProofTextLen = d.MaxProofTextLen
	}
	if o.RevivalResetPenalty <= 0 {
		o.RevivalResetPenalty = d.RevivalResetPenalty
	}
	if o.RevivalChallengePenalty <= 0 {
		o.RevivalChallengePenalty = d.RevivalChallengePenalty
	}
	if o.ExpiryWarningWindow <= 0 {
		o.ExpiryWarningWindow = d.ExpiryWarningWindow
	}
	if o.NotifyConcurrency <= 0 {
		o.NotifyConcurrency = d.NotifyConcurrency
	}
	if o.SweepBatchSize <= 0 {
		o.SweepBatchSize = d.SweepBatchSize
	}
	if o.Location == nil {
		o.Location = d.Location
	}
	return o
}
