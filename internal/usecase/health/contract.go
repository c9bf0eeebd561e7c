package health

import "context"

// CachePinger checks embedding cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// EncoderChecker checks encoder provider availability.
type EncoderChecker interface {
	HealthCheck(ctx context.Context) error
}

// CorpusCounter reports the number of stored documents.
type CorpusCounter interface {
	Count(ctx context.Context) int
}
