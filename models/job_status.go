package models

// JobStatus is the central state of a job.
//
//	pending     -> accepted     (accept by a professional)
//	pending     -> in_progress  (accept offer by the owning customer)
//	pending     -> cancelled
//	accepted    -> in_progress  (start)
//	accepted    -> cancelled
//	in_progress -> completed    (complete)
//	in_progress -> cancelled
//	completed   -> rated        (rate)
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobAccepted   JobStatus = "accepted"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
	JobRated      JobStatus = "rated"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobAccepted, JobInProgress, JobCancelled},
	JobAccepted:   {JobInProgress, JobCancelled},
	JobInProgress: {JobCompleted, JobCancelled},
	JobCompleted:  {JobRated},
}

// Valid reports whether s is one of the known job states
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobAccepted, JobInProgress, JobCompleted, JobCancelled, JobRated:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s
func (s JobStatus) Terminal() bool {
	return s == JobCancelled || s == JobRated
}

// CanTransitionTo reports whether the state machine has an edge from s to next
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Earning reports whether a job in this state counts towards the professional's earnings
func (s JobStatus) Earning() bool {
	return s == JobCompleted || s == JobRated
}

// EarningStatuses lists the states whose price is credited to the professional
func EarningStatuses() []JobStatus {
	return []JobStatus{JobCompleted, JobRated}
}

// Assigned reports whether a job in this state must carry a professional
func (s JobStatus) Assigned() bool {
	switch s {
	case JobAccepted, JobInProgress, JobCompleted, JobRated:
		return true
	}
	return false
}
