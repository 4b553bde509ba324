// Package tracking sends product events to PostHog.
package tracking

import (
	"time"

	"github.com/posthog/posthog-go"

	"leaps-tracker/logger"
	"leaps-tracker/models"
)

// Event names.
const (
	EventSubmissionCreated  = "submission_created"
	EventSubmissionReviewed = "submission_reviewed"
	EventPointsCredited     = "points_credited"
	EventBadgeEarned        = "badge_earned"
	EventViewsRefreshed     = "analytics_views_refreshed"
)

const posthogEndpoint = "https://us.i.posthog.com"

// Event is one product event. Build it with the helpers below.
type Event struct {
	Name       string
	DistinctID string
	Props      map[string]interface{}
}

func SubmissionCreated(userID, submissionID string, activity models.ActivityCode) Event {
	return Event{Name: EventSubmissionCreated, DistinctID: userID, Props: map[string]interface{}{
		"submission": submissionID,
		"activity":   string(activity),
	}}
}

// SubmissionReviewed is attributed to the reviewer.
func SubmissionReviewed(reviewerID, submissionID string, activity models.ActivityCode, decision models.SubmissionStatus) Event {
	return Event{Name: EventSubmissionReviewed, DistinctID: reviewerID, Props: map[string]interface{}{
		"submission": submissionID,
		"activity":   string(activity),
		"decision":   string(decision),
	}}
}

func PointsCredited(userID string, activity models.ActivityCode, delta int, source models.PointsSource) Event {
	return Event{Name: EventPointsCredited, DistinctID: userID, Props: map[string]interface{}{
		"activity": string(activity),
		"delta":    delta,
		"source":   string(source),
	}}
}

func BadgeEarned(userID, badge string) Event {
	return Event{Name: EventBadgeEarned, DistinctID: userID, Props: map[string]interface{}{"badge": badge}}
}

func ViewsRefreshed(userID string, took time.Duration) Event {
	return Event{Name: EventViewsRefreshed, DistinctID: userID, Props: map[string]interface{}{
		"took_ms": took.Milliseconds(),
	}}
}

// Client wraps the PostHog client with nil-safe methods.
// A zero-value Client drops every event.
type Client struct {
	ph  posthog.Client
	env string
	log logger.Logger
}

// New returns a no-op client if apiKey is empty. env is attached to every event.
func New(apiKey, env string, log logger.Logger) *Client {
	c := &Client{env: env, log: log}
	if apiKey == "" {
		return c
	}
	ph, err := posthog.NewWithConfig(apiKey, posthog.Config{Endpoint: posthogEndpoint})
	if err != nil {
		log.Warn("⚠️  [TRACKING] failed to init posthog", err)
		return c
	}
	c.ph = ph
	return c
}

// Close flushes pending events.
func (c *Client) Close() {
	if c != nil && c.ph != nil {
		c.ph.Close()
	}
}

// Track enqueues e asynchronously. Events without a distinct id are dropped.
func (c *Client) Track(e Event) {
	if c == nil || c.ph == nil || e.DistinctID == "" {
		return
	}
	if err := c.ph.Enqueue(c.capture(e)); err != nil && c.log != nil {
		c.log.Warn("[TRACKING] enqueue failed", "event", e.Name, err)
	}
}

func (c *Client) capture(e Event) posthog.Capture {
	p := posthog.NewProperties()
	for k, v := range e.Props {
		p.Set(k, v)
	}
	if c.env != "" {
		p.Set("env", c.env)
	}
	return posthog.Capture{
		DistinctId: e.DistinctID,
		Event:      e.Name,
		Properties: p,
	}
}
