package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Image and video generations never stream. The gateway accepts a job,
// returns its id, and the job is polled until it settles.

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobRequest submits one image or video generation.
type JobRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	// Kind is "images" or "videos"; it selects the gateway route.
	Kind string `json:"-"`
}

// JobResult is the settled outcome of a generation job.
type JobResult struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
	// URL points at the generated asset once the job succeeded.
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
	// CostUsd is the flat job price reported by the gateway, if any.
	CostUsd *float64 `json:"cost_usd,omitempty"`
}

const (
	jobPollInterval = 2 * time.Second
	jobPollAttempts = 150
)

// JobClient submits generation jobs and polls them.
type JobClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewJobClient builds a job client against the gateway base URL.
func NewJobClient(baseURL, apiKey string) *JobClient {
	return &JobClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Submit posts the job and returns its id.
func (c *JobClient) Submit(ctx context.Context, req *JobRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal job request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generations/"+req.Kind, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("submit job: gateway returned %d: %s", resp.StatusCode, string(body))
	}

	var result JobResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode job response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("submit job: gateway returned no job id")
	}
	return result.ID, nil
}

// Poll fetches the job state once.
func (c *JobClient) Poll(ctx context.Context, jobID string) (*JobResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/generations/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("poll job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("poll job: gateway returned %d: %s", resp.StatusCode, string(body))
	}

	var result JobResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode job state: %w", err)
	}
	return &result, nil
}

// Wait submits the job and polls until it settles, the attempt budget
// runs out, or ctx is cancelled.
func (c *JobClient) Wait(ctx context.Context, req *JobRequest) (*JobResult, error) {
	jobID, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < jobPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		result, err := c.Poll(ctx, jobID)
		if err != nil {
			// Transient poll failures are retried within the budget.
			slog.Warn("job poll failed", "job_id", jobID, "attempt", attempt, "error", err)
			continue
		}
		switch result.Status {
		case JobStatusSucceeded:
			return result, nil
		case JobStatusFailed:
			return result, fmt.Errorf("generation job failed: %s", result.Error)
		}
	}
	return nil, fmt.Errorf("generation job %s timed out", jobID)
}
