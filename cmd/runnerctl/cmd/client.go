package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mlrunner/pkg/api"
)

// RunnerClient handles API calls to the runner daemon.
type RunnerClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewRunnerClient creates a new client for the given base URL.
func NewRunnerClient(baseURL string) *RunnerClient {
	return &RunnerClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the runner.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// GetStatus sends GET /status.
func (c *RunnerClient) GetStatus() (*api.StatusResponse, error) {
	resp, err := c.HTTPClient.Get(fmt.Sprintf("%s/status", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result api.StatusResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// CreateEnvironment sends POST /environments to provision a job workspace.
func (c *RunnerClient) CreateEnvironment(req api.CreateEnvironmentRequest) error {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.HTTPClient.Post(
		fmt.Sprintf("%s/environments", c.BaseURL), "application/json", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return nil
}

// RunTask sends POST /tasks/run and delivers each stream frame to onFrame
// until the stream ends. The terminal outcome frame, when present, is
// returned after the stream closes.
func (c *RunnerClient) RunTask(req api.RunTaskRequest, onFrame func(api.StreamFrame)) (*api.Outcome, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/tasks/run", c.BaseURL), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// A task stream lives as long as the task; no client timeout.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var outcome *api.Outcome
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var frame api.StreamFrame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			return outcome, fmt.Errorf("invalid stream frame: %w", err)
		}
		if frame.Outcome != nil {
			outcome = frame.Outcome
		}
		onFrame(frame)
	}
	if err := scanner.Err(); err != nil {
		return outcome, fmt.Errorf("stream read failed: %w", err)
	}
	return outcome, nil
}

// StopTask sends POST /tasks/{jobID}/stop.
func (c *RunnerClient) StopTask(jobID string) error {
	resp, err := c.HTTPClient.Post(
		fmt.Sprintf("%s/tasks/%s/stop", c.BaseURL, jobID), "application/json", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return nil
}

// RemoveEnvironment sends DELETE /environments/{jobID}.
func (c *RunnerClient) RemoveEnvironment(jobID string) error {
	httpReq, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/environments/%s", c.BaseURL, jobID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return nil
}
