package sources

import (
	"context"
	"fmt"
)

// PinResolver finds the current commit for an unpinned GitHub locator by
// cloning its repository and reading the file's history.
type PinResolver struct {
	cloner  Cloner
	history HistoryReader
}

func NewPinResolver(cloner Cloner, history HistoryReader) *PinResolver {
	return &PinResolver{cloner: cloner, history: history}
}

// ResolvePin returns the latest commit touching the locator's path.
func (p *PinResolver) ResolvePin(ctx context.Context, locator string) (string, error) {
	f, ok := ParseGitHubURL(locator)
	if !ok {
		return "", fmt.Errorf("invalid GitHub URL: %s", locator)
	}
	root, err := p.cloner.Clone(ctx, fmt.Sprintf("https://github.com/%s/%s.git", f.Owner, f.Repo))
	if err != nil {
		return "", err
	}
	hash, found, err := p.history.LatestCommitHash(ctx, root, f.Path)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("no commits found for %s", f.Path)
	}
	return hash, nil
}
