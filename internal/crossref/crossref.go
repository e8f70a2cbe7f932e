package crossref

import (
	"regexp"

	"github.com/nhle/review-notifier/internal/model"
)

// issueKeyPattern matches tracker issue keys such as PROJ-123.
var issueKeyPattern = regexp.MustCompile(`\b([A-Z][A-Z0-9]+-\d+)\b`)

// ExtractIssueKeys returns the distinct issue keys found in text, in order of
// first occurrence, or nil when there are none.
func ExtractIssueKeys(text string) []string {
	matches := issueKeyPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	keys := matches[:0]
	seen := make(map[string]struct{}, len(matches))
	for _, key := range matches {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// MergeRequestKeys extracts issue keys from a merge request's source
// branch, title and description, in that order.
func MergeRequestKeys(mr model.MergeRequest) []string {
	return ExtractIssueKeys(mr.SourceBranch + " " + mr.Title + " " + mr.Description)
}
