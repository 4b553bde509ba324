package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaps-tracker/models"
)

func TestSubmissionPoints(t *testing.T) {
	tests := []struct {
		name     string
		activity models.ActivityCode
		payload  string
		want     int
	}{
		{"learn is flat", models.ActivityLearn, `{"course":"x"}`, 20},
		{"explore is flat", models.ActivityExplore, `{}`, 50},
		{"present is flat", models.ActivityPresent, `{}`, 20},
		{"shine earns nothing", models.ActivityShine, `{}`, 0},
		{"amplify counts peers and students", models.ActivityAmplify, `{"peersTrained":10,"studentsTrained":30}`, 50},
		{"amplify caps peers", models.ActivityAmplify, `{"peersTrained":80,"studentsTrained":0}`, 100},
		{"amplify caps students", models.ActivityAmplify, `{"peersTrained":0,"studentsTrained":500}`, 200},
		{"amplify ignores negatives", models.ActivityAmplify, `{"peersTrained":-4,"studentsTrained":-1}`, 0},
		{"amplify with empty payload", models.ActivityAmplify, ``, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SubmissionPoints(tt.activity, []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubmissionPointsErrors(t *testing.T) {
	_, err := SubmissionPoints(models.ActivityAmplify, []byte(`{"peersTrained":"many"}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "payload")

	_, err = SubmissionPoints("DANCE", nil)
	require.ErrorAs(t, err, &verr)
}
