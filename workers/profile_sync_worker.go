// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"leaps-tracker/logger"
	"leaps-tracker/services"
)

// remoteProfile matches one entry of the profile service response.
type remoteProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	School    string    `json:"school"`
	Cohort    string    `json:"cohort"`
	UpdatedAt time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Profiles []remoteProfile `json:"profiles"`
}

// ProfileUpserter stores synced profiles.
type ProfileUpserter interface {
	UpsertProfiles(ctx context.Context, profiles []services.Profile) (int, error)
}

// ProfileSyncWorker pulls changed educator profiles and upserts them as users.
// The cursor is the newest updated_at seen; the first run backfills everything.
type ProfileSyncWorker struct {
	users        ProfileUpserter
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
	log          logger.Logger

	mu    sync.Mutex
	since time.Time
}

func NewProfileSyncWorker(users ProfileUpserter, baseURL, endpointPath, serviceToken string, log logger.Logger) *ProfileSyncWorker {
	return &ProfileSyncWorker{
		users:        users,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		log:          log,
	}
}

// SyncOnce fetches one batch of changes. Safe to call from a scheduler.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid profile service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", w.since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("profile service request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("profile service returned %d: %s", resp.StatusCode, string(body))
	}

	var changes profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&changes); err != nil {
		return fmt.Errorf("failed to decode profile service response: %w", err)
	}
	if len(changes.Profiles) == 0 {
		w.log.Debug("[SYNC] no profile changes", "since", w.since.Format(time.RFC3339))
		return nil
	}

	profiles := make([]services.Profile, 0, len(changes.Profiles))
	latest := w.since
	for _, p := range changes.Profiles {
		profiles = append(profiles, services.Profile{
			ExternalID: p.ID,
			Name:       p.Name,
			Email:      p.Email,
			School:     p.School,
			Cohort:     p.Cohort,
		})
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
	}

	n, err := w.users.UpsertProfiles(ctx, profiles)
	if err != nil {
		return err
	}
	w.since = latest
	w.log.Info("✅ [SYNC] profiles synced", "received", len(profiles), "upserted", n, "cursor", latest.Format(time.RFC3339))
	return nil
}
