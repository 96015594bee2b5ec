package trigger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gantry-runner/src/contracts"
)

// pushPayload is the subset of the GitHub push webhook payload we consume.
type pushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Commits []struct {
		Added    []string `json:"added"`
		Removed  []string `json:"removed"`
		Modified []string `json:"modified"`
	} `json:"commits"`
}

// pullRequestPayload is the subset of the GitHub pull_request webhook
// payload we consume. Changed files are not part of the payload; callers
// fetch them through the API client.
type pullRequestPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		Number int `json:"number"`
		Base   struct {
			Ref string `json:"ref"`
		} `json:"base"`
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

const branchRefPrefix = "refs/heads/"

// ParsePushEvent decodes a GitHub push webhook payload into a TriggerEvent.
// Changed paths are the union of added, removed, and modified files across
// all commits in the push.
func ParsePushEvent(data []byte) (contracts.TriggerEvent, error) {
	var payload pushPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return contracts.TriggerEvent{}, fmt.Errorf("failed to decode push payload: %w", err)
	}
	if !strings.HasPrefix(payload.Ref, branchRefPrefix) {
		return contracts.TriggerEvent{}, fmt.Errorf("push ref %q is not a branch", payload.Ref)
	}

	seen := make(map[string]struct{})
	for _, c := range payload.Commits {
		for _, group := range [][]string{c.Added, c.Removed, c.Modified} {
			for _, p := range group {
				seen[p] = struct{}{}
			}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	return contracts.TriggerEvent{
		Kind:         contracts.EventPush,
		Repo:         payload.Repository.FullName,
		Commit:       payload.After,
		Branch:       strings.TrimPrefix(payload.Ref, branchRefPrefix),
		ChangedPaths: paths,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// ParsePullRequestEvent decodes a GitHub pull_request webhook payload.
// It returns the event without changed paths plus the PR number so the
// caller can fetch the file list, and ok=false for PR actions that should
// not trigger a run (anything but opened/synchronize/reopened).
func ParsePullRequestEvent(data []byte) (event contracts.TriggerEvent, number int, ok bool, err error) {
	var payload pullRequestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return contracts.TriggerEvent{}, 0, false, fmt.Errorf("failed to decode pull_request payload: %w", err)
	}

	switch payload.Action {
	case "opened", "synchronize", "reopened":
	default:
		return contracts.TriggerEvent{}, 0, false, nil
	}

	event = contracts.TriggerEvent{
		Kind:         contracts.EventPullRequest,
		Repo:         payload.Repository.FullName,
		Commit:       payload.PullRequest.Head.SHA,
		TargetBranch: payload.PullRequest.Base.Ref,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	return event, payload.PullRequest.Number, true, nil
}
