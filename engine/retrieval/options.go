package retrieval

import "time"

// Options controls a single retrieval request.
type Options struct {
	// TopK is the number of results to return after merging.
	TopK int
	// IncludeReports also searches the curated reports namespace.
	IncludeReports bool
	// UserScopeID filters the default-namespace search to one user's documents.
	UserScopeID string
	// ExcludeUserScope drops hits owned by the given user after searching,
	// used by the general-knowledge pass of dual answers.
	ExcludeUserScope string
	// DiversityCapPerSource limits how many hits one source document may
	// contribute to the final result set.
	DiversityCapPerSource int
	// BranchTimeout bounds each namespace search independently.
	BranchTimeout time.Duration
	// AdjacentMergeMaxLen is the combined content length under which two
	// adjacent chunks of the same source collapse into the higher-scored one.
	AdjacentMergeMaxLen int
}

// DefaultOptions returns sensible retrieval defaults.
func DefaultOptions() Options {
	return Options{
		TopK:                  5,
		IncludeReports:        true,
		DiversityCapPerSource: 3,
		BranchTimeout:         5 * time.Second,
		AdjacentMergeMaxLen:   600,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.DiversityCapPerSource <= 0 {
		o.DiversityCapPerSource = d.DiversityCapPerSource
	}
	if o.BranchTimeout <= 0 {
		o.BranchTimeout = d.BranchTimeout
	}
	if o.AdjacentMergeMaxLen <= 0 {
		o.AdjacentMergeMaxLen = d.AdjacentMergeMaxLen
	}
	return o
}
