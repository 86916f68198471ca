package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuestionTerminalStates(t *testing.T) {
	cases := []struct {
		state QuestionState
		want  bool
	}{
		{QuestionPending, false},
		{QuestionAnswered, true},
		{QuestionExpired, true},
	}
	for _, tc := range cases {
		q := &Question{State: tc.state}
		assert.Equal(t, tc.want, q.Terminal(), "state %s", tc.state)
	}
}
