package appointment

// transitions lists, for each status, the statuses reachable from it.
// Terminal statuses have no entries.
var transitions = map[Status][]Status{
	StatusPending:     {StatusConfirmed, StatusCancelled, StatusRejected},
	StatusConfirmed:   {StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusRescheduled: {StatusConfirmed, StatusCancelled},
}

// CanTransition reports whether target is directly reachable from current.
func CanTransition(current, target Status) bool {
	for _, s := range transitions[current] {
		if s == target {
			return true
		}
	}
	return false
}
