package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaps-tracker/models"
)

func TestNormalizeCreate(t *testing.T) {
	activity, visibility, payload, err := normalizeCreate(CreateSubmissionInput{
		ActivityCode: "amplify",
		Payload:      json.RawMessage(`{"peersTrained": 3, "studentsTrained": 40}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActivityAmplify, activity)
	assert.Equal(t, models.VisibilityPrivate, visibility)
	// payload bytes are kept as sent, spacing included
	assert.Equal(t, `{"peersTrained": 3, "studentsTrained": 40}`, string(payload))

	_, _, payload, err = normalizeCreate(CreateSubmissionInput{ActivityCode: "LEARN", Visibility: "PUBLIC"})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(payload))
}

func TestNormalizeCreateRejects(t *testing.T) {
	tests := []struct {
		name  string
		in    CreateSubmissionInput
		field string
	}{
		{"missing activity", CreateSubmissionInput{}, "activityCode"},
		{"unknown activity", CreateSubmissionInput{ActivityCode: "DANCE"}, "activityCode"},
		{"bad visibility", CreateSubmissionInput{ActivityCode: "LEARN", Visibility: "FRIENDS"}, "visibility"},
		{"array payload", CreateSubmissionInput{ActivityCode: "LEARN", Payload: json.RawMessage(`[1,2]`)}, "payload"},
		{"bad amplify counts", CreateSubmissionInput{ActivityCode: "AMPLIFY", Payload: json.RawMessage(`{"peersTrained":"x"}`)}, "payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := normalizeCreate(tt.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestReviewTransition(t *testing.T) {
	pending := &models.Submission{UserID: "author", Status: models.StatusPending}

	assert.NoError(t, reviewTransition(pending, "reviewer", models.StatusApproved))
	assert.NoError(t, reviewTransition(pending, "reviewer", models.StatusRejected))
	assert.ErrorIs(t, reviewTransition(pending, "author", models.StatusApproved), ErrForbidden)

	var verr *ValidationError
	assert.ErrorAs(t, reviewTransition(pending, "reviewer", models.StatusPending), &verr)

	for _, status := range []models.SubmissionStatus{models.StatusApproved, models.StatusRejected} {
		done := &models.Submission{UserID: "author", Status: status}
		var conflict *ConflictError
		assert.ErrorAs(t, reviewTransition(done, "reviewer", models.StatusApproved), &conflict, status)
	}
}

func TestAttachmentKey(t *testing.T) {
	assert.Equal(t, "submissions/s1/abc.pdf", AttachmentKey("s1", "abc", "Certificate.PDF"))
	assert.Equal(t, "submissions/s1/abc", AttachmentKey("s1", "abc", "noext"))
}

func TestSubmissionEventID(t *testing.T) {
	assert.Equal(t, "submission:42", SubmissionEventID("42"))
}
