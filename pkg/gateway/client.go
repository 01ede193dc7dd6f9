// Package gateway is the narrow client through which action handlers reach
// the CRM core's side-effectful operations. The engine never touches CRM
// records directly; everything goes through this internal HTTP surface.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// EmailMessage is an outbound email request.
type EmailMessage struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body,omitempty"`
}

// Note is a free-form note attached to a CRM record.
type Note struct {
	EntityType string `json:"entity_type"`
	RecordID   string `json:"record_id"`
	Content    string `json:"content"`
	AuthorID   string `json:"author_id,omitempty"`
}

// FieldChange mutates a single field on a CRM record.
type FieldChange struct {
	EntityType string `json:"entity_type"`
	RecordID   string `json:"record_id"`
	Field      string `json:"field"`
	Value      any    `json:"value"`
}

// Task is a follow-up task created for a user or role.
type Task struct {
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	AssigneeRole string     `json:"assignee_role,omitempty"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	RelatedID    string     `json:"related_id,omitempty"`
}

// ExportRequest asks the CRM core to queue a data export job.
type ExportRequest struct {
	ExportType string         `json:"export_type"`
	Format     string         `json:"format"`
	Filters    map[string]any `json:"filters,omitempty"`
}

// Notification is an in-app notification for one or more recipients.
type Notification struct {
	Recipients []string `json:"recipients"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	Level      string   `json:"level,omitempty"`
}

// Client talks to the CRM core's internal API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger.With("module", "crm_gateway"),
	}
}

func (c *Client) SendEmail(ctx context.Context, message EmailMessage) error {
	return c.post(ctx, "/internal/emails", message, nil)
}

func (c *Client) AddNote(ctx context.Context, note Note) error {
	return c.post(ctx, "/internal/notes", note, nil)
}

func (c *Client) UpdateField(ctx context.Context, change FieldChange) error {
	return c.post(ctx, "/internal/records/update-field", change, nil)
}

func (c *Client) CreateTask(ctx context.Context, task Task) error {
	return c.post(ctx, "/internal/tasks", task, nil)
}

// EnqueueExport queues an export job and returns its ID.
func (c *Client) EnqueueExport(ctx context.Context, request ExportRequest) (string, error) {
	var response struct {
		JobID string `json:"job_id"`
	}

	err := c.post(ctx, "/internal/exports", request, &response)
	if err != nil {
		return "", err
	}

	return response.JobID, nil
}

func (c *Client) SendNotification(ctx context.Context, notification Notification) error {
	return c.post(ctx, "/internal/notifications", notification, nil)
}

// ScopeAdmins returns the admin user IDs of a company scope. SLA alerting
// uses it to widen the recipient list beyond the workflow owner.
func (c *Client) ScopeAdmins(ctx context.Context, scope string) ([]string, error) {
	var response struct {
		AdminIDs []string `json:"admin_ids"`
	}

	err := c.post(ctx, "/internal/scopes/admins", map[string]string{"scope": scope}, &response)
	if err != nil {
		return nil, err
	}

	return response.AdminIDs, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			c.logger.Error("failed to close gateway response body", "error", err)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return fmt.Errorf("gateway returned status %d for %s: %s", resp.StatusCode, path, string(raw))
	}

	if out != nil {
		err = json.NewDecoder(resp.Body).Decode(out)
		if err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}

	return nil
}
