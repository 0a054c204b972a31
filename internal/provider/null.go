package provider

import (
	"context"
	"errors"

	"stmtsep/internal/types"
)

// NullProvider is the always-unavailable provider. Detection falls straight
// through to the content-based strategies when it is selected.
type NullProvider struct{}

// NewNullProvider returns the null provider.
func NewNullProvider() *NullProvider { return &NullProvider{} }

func (*NullProvider) AnalyzeBoundaries(context.Context, string, int) ([]BoundaryCandidate, error) {
	return nil, types.Recoverable(types.KindProviderUnavailable, errors.New("no provider configured"))
}

func (*NullProvider) ExtractMetadata(context.Context, string, int, int) (*MetadataCandidate, error) {
	return nil, types.Recoverable(types.KindProviderUnavailable, errors.New("no provider configured"))
}

func (*NullProvider) Available(context.Context) bool { return false }

func (*NullProvider) Info() Info {
	return Info{Kind: KindNone}
}
