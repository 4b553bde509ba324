package services

import (
	"encoding/json"

	"leaps-tracker/models"
)

// Point rules per stage. AMPLIFY is scored from the payload; the rest are flat.
const (
	LearnPoints   = 20
	ExplorePoints = 50
	PresentPoints = 20
	ShinePoints   = 0

	AmplifyPointsPerPeer    = 2
	AmplifyPointsPerStudent = 1
	AmplifyMaxPeers         = 50
	AmplifyMaxStudents      = 200
)

// AmplifyPayload is the scored part of an AMPLIFY submission.
type AmplifyPayload struct {
	PeersTrained    int `json:"peersTrained"`
	StudentsTrained int `json:"studentsTrained"`
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SubmissionPoints returns the credit an approved submission earns.
func SubmissionPoints(activity models.ActivityCode, payload []byte) (int, error) {
	switch activity {
	case models.ActivityLearn:
		return LearnPoints, nil
	case models.ActivityExplore:
		return ExplorePoints, nil
	case models.ActivityPresent:
		return PresentPoints, nil
	case models.ActivityShine:
		return ShinePoints, nil
	case models.ActivityAmplify:
		var p AmplifyPayload
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				return 0, NewValidationError("invalid AMPLIFY payload", map[string]string{
					"payload": "peersTrained and studentsTrained must be integers",
				})
			}
		}
		peers := clamp(p.PeersTrained, 0, AmplifyMaxPeers)
		students := clamp(p.StudentsTrained, 0, AmplifyMaxStudents)
		return peers*AmplifyPointsPerPeer + students*AmplifyPointsPerStudent, nil
	}
	return 0, NewValidationError("unknown activity", map[string]string{"activityCode": string(activity)})
}
