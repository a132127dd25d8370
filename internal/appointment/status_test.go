package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []Status{
	StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled,
	StatusRescheduled, StatusNoShow, StatusRejected,
}

func TestCanTransition_Closure(t *testing.T) {
	allowed := map[Status]map[Status]bool{
		StatusPending:     {StatusConfirmed: true, StatusCancelled: true, StatusRejected: true},
		StatusConfirmed:   {StatusCompleted: true, StatusCancelled: true, StatusNoShow: true, StatusRescheduled: true},
		StatusRescheduled: {StatusConfirmed: true, StatusCancelled: true},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			got := CanTransition(from, to)
			want := allowed[from][to]
			assert.Equal(t, want, got, "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, from := range allStatuses {
		if !from.Terminal() {
			continue
		}
		for _, to := range allStatuses {
			assert.False(t, CanTransition(from, to), "terminal %s must not reach %s", from, to)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
	assert.False(t, StatusRescheduled.Terminal())

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusNoShow.Terminal())
	assert.True(t, StatusRejected.Terminal())
}

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{
		KindConsultation, KindFollowUp, KindCheckUp, KindVaccination,
		KindProcedure, KindTest, KindEmergency,
	} {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Kind("surgery").Valid())
	assert.False(t, Kind("").Valid())
}
