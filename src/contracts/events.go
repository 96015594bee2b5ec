// Package contracts defines the message types exchanged between the webhook
// receiver, runner agents, and result consumers.
package contracts

// EventKind identifies what produced a trigger event.
type EventKind string

const (
	// EventPush is a commit pushed to a branch.
	EventPush EventKind = "push"
	// EventPullRequest is a pull request opened against or updated on a
	// target branch.
	EventPullRequest EventKind = "pull_request"
)

// TriggerEvent is the code-change notification that causes pipeline
// evaluation. Exactly one of Branch or TargetBranch is meaningful,
// depending on Kind.
type TriggerEvent struct {
	// Kind of event: push or pull_request.
	Kind EventKind `json:"kind"`
	// Repository in owner/name form, for reporting only.
	Repo string `json:"repo,omitempty"`
	// Commit SHA the event refers to.
	Commit string `json:"commit,omitempty"`
	// Branch the commit was pushed to (push events).
	Branch string `json:"branch,omitempty"`
	// TargetBranch the pull request is aimed at (pull_request events).
	TargetBranch string `json:"target_branch,omitempty"`
	// ChangedPaths is the set of repository-relative file paths touched
	// by the change.
	ChangedPaths []string `json:"changed_paths"`
	// Timestamp is when the event was received, RFC3339.
	Timestamp string `json:"timestamp,omitempty"`
}

// Ref returns the branch this event is aimed at: the pushed branch for push
// events, the target branch for pull requests.
func (e TriggerEvent) Ref() string {
	if e.Kind == EventPullRequest {
		return e.TargetBranch
	}
	return e.Branch
}

// RunRequest pairs an accepted trigger event with the run ID assigned to it.
// Published to TopicTriggers, keyed by run ID.
type RunRequest struct {
	RunID string       `json:"run_id"`
	Event TriggerEvent `json:"event"`
}

// Topic names used on the broker.
const (
	// TopicTriggers carries accepted trigger events awaiting execution.
	TopicTriggers = "gantry.triggers"

	// TopicRunEvents carries per-stage progress events for live viewers.
	TopicRunEvents = "gantry.runs.events"

	// TopicRunResults carries completed run results.
	TopicRunResults = "gantry.runs.results"
)
