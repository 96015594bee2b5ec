package trigger

import "gantry-runner/src/contracts"

// Rules binds a pipeline to the events that may start it: pushes to listed
// branches, pull requests targeting listed branches, and a path filter the
// changed files must intersect.
type Rules struct {
	PushBranches        []string
	PullRequestBranches []string
	Filter              *PathFilter
}

// ShouldRun reports whether event should start a run. It is true iff the
// event is a push to a configured branch or a pull request targeting a
// configured branch, and at least one changed path passes the filter.
// Pure and deterministic; no side effects.
func (r Rules) ShouldRun(event contracts.TriggerEvent) bool {
	switch event.Kind {
	case contracts.EventPush:
		if !containsBranch(r.PushBranches, event.Branch) {
			return false
		}
	case contracts.EventPullRequest:
		if !containsBranch(r.PullRequestBranches, event.TargetBranch) {
			return false
		}
	default:
		return false
	}

	if r.Filter == nil {
		return true
	}
	return r.Filter.MatchesAny(event.ChangedPaths)
}

func containsBranch(branches []string, branch string) bool {
	for _, b := range branches {
		if b == branch {
			return true
		}
	}
	return false
}
