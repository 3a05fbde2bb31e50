package store

import (
	"context"

	"github.com/portwatch/portwatch/pkg/types"
)

// ActivityStore is the read side the engine depends on plus the single
// mutation it is allowed to make.
type ActivityStore interface {
	ListPortfolios(ctx context.Context) ([]types.Portfolio, error)
	GetPortfolio(ctx context.Context, id string) (types.Portfolio, error)
	ListIssues(ctx context.Context, f types.IssueFilter) ([]types.Issue, error)

	// UpdatePortfolioChecked persists the manual review flag. details is
	// stored as given; callers clear it when checked is true.
	UpdatePortfolioChecked(ctx context.Context, id string, checked bool, details string) error
}
