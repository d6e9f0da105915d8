package roleassignment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
	"github.com/hmcts/wa-task-management-api-sub002/internal/infra/config"
)

const defaultTimeout = 10 * time.Second

// APIError wraps non-2xx responses from the role assignment service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("role assignment service error: status=%d body=%s", e.StatusCode, e.Body)
}

// Client implements port.RoleAssignmentSource over the role assignment REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient builds a client with an instrumented transport.
func NewClient(cfg config.RoleAssignmentSettings, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return newClient(cfg.BaseURL, &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, logger)
}

func newClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

type assignmentPayload struct {
	ID             string            `json:"id"`
	ActorIDType    string            `json:"actorIdType"`
	ActorID        string            `json:"actorId"`
	RoleType       string            `json:"roleType"`
	RoleName       string            `json:"roleName"`
	Classification string            `json:"classification"`
	GrantType      string            `json:"grantType"`
	RoleCategory   string            `json:"roleCategory"`
	ReadOnly       bool              `json:"readOnly"`
	BeginTime      *time.Time        `json:"beginTime,omitempty"`
	EndTime        *time.Time        `json:"endTime,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Authorisations []string          `json:"authorisations,omitempty"`
}

func (p assignmentPayload) toDomain() domain.RoleAssignment {
	return domain.RoleAssignment{
		ID:             p.ID,
		ActorIDType:    domain.ActorIDType(p.ActorIDType),
		ActorID:        p.ActorID,
		RoleName:       p.RoleName,
		RoleType:       domain.RoleType(p.RoleType),
		Classification: domain.Classification(p.Classification),
		GrantType:      domain.GrantType(p.GrantType),
		RoleCategory:   domain.RoleCategory(p.RoleCategory),
		ReadOnly:       p.ReadOnly,
		BeginTime:      p.BeginTime,
		EndTime:        p.EndTime,
		Authorisations: p.Authorisations,
		Attributes:     p.Attributes,
	}
}

type assignmentResponse struct {
	RoleAssignments []assignmentPayload `json:"roleAssignmentResponse"`
}

type query struct {
	RoleType   []string            `json:"roleType,omitempty"`
	RoleName   []string            `json:"roleName,omitempty"`
	ValidAt    time.Time           `json:"validAt"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}

type queryRequest struct {
	Queries []query `json:"queries"`
}

// GetRolesByUserID returns the actor's role assignments.
func (c *Client) GetRolesByUserID(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	if strings.TrimSpace(userID) == "" {
		return []domain.RoleAssignment{}, nil
	}

	var resp assignmentResponse
	path := "/am/role-assignments/actors/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get roles for user %s: %w", userID, err)
	}
	return convert(resp.RoleAssignments, c.now()), nil
}

// QueryRolesForAutoAssignmentByCaseID returns case roles on the task's case matching one of its
// auto-assignable role names.
func (c *Client) QueryRolesForAutoAssignmentByCaseID(ctx context.Context, task domain.TaskResource) ([]domain.RoleAssignment, error) {
	var roleNames []string
	for _, role := range task.Roles {
		if role.AutoAssignable {
			roleNames = append(roleNames, role.RoleName)
		}
	}
	if len(roleNames) == 0 || task.CaseID == "" {
		return []domain.RoleAssignment{}, nil
	}

	now := c.now()
	body := queryRequest{Queries: []query{{
		RoleType:   []string{string(domain.RoleTypeCase)},
		RoleName:   roleNames,
		ValidAt:    now.UTC(),
		Attributes: map[string][]string{domain.AttributeCaseID: {task.CaseID}},
	}}}

	var resp assignmentResponse
	if err := c.do(ctx, http.MethodPost, "/am/role-assignments/query", body, &resp); err != nil {
		return nil, fmt.Errorf("query auto assignment roles for case %s: %w", task.CaseID, err)
	}

	assignments := convert(resp.RoleAssignments, now)
	c.logger.Debug("auto assignment candidates fetched",
		zap.String("task_id", task.TaskID),
		zap.String("case_id", task.CaseID),
		zap.Int("candidates", len(assignments)),
	)
	return assignments, nil
}

// convert drops assignments outside their validity window and excluded grants.
func convert(payloads []assignmentPayload, at time.Time) []domain.RoleAssignment {
	out := make([]domain.RoleAssignment, 0, len(payloads))
	for _, payload := range payloads {
		assignment := payload.toDomain()
		if assignment.GrantType == domain.GrantTypeExcluded || !assignment.ActiveAt(at) {
			continue
		}
		out = append(out, assignment)
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return nil
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ port.RoleAssignmentSource = (*Client)(nil)
