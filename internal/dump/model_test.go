package dump

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusPending, false},
		{StatusFailed, StatusProcessing, false},
		{StatusProcessing, StatusPending, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestKindValid(t *testing.T) {
	assert.True(t, KindText.Valid())
	assert.True(t, KindVoice.Valid())
	assert.True(t, KindImage.Valid())
	assert.True(t, KindDocument.Valid())
	assert.False(t, Kind("video").Valid())
	assert.False(t, Kind("").Valid())
}

func TestEntitiesDateValues(t *testing.T) {
	now := time.Now()
	e := Entities{
		Dates: []DateEntity{
			{Entity: Entity{Value: "Friday"}, Resolved: now.AddDate(0, 0, 2)},
			{Entity: Entity{Value: "tomorrow"}, Resolved: now.AddDate(0, 0, 1)},
		},
	}

	values := e.DateValues()
	assert.Len(t, values, 2)

	var empty Entities
	assert.Nil(t, empty.DateValues())
}
