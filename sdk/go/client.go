package caselinesdk

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
)

// Client is a minimal Caseline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Enquiry represents the API enquiry model.
type Enquiry struct {
	ID              string   `json:"id"`
	ClientName      string   `json:"client_name"`
	ClientEmail     string   `json:"client_email,omitempty"`
	Budget          string   `json:"budget,omitempty"`
	Status          string   `json:"status"`
	ViewedBy        []string `json:"viewed_by,omitempty"`
	ConvertedCaseID *string  `json:"converted_case_id,omitempty"`
}

// Case represents the API case model (partial).
type Case struct {
	ID          string   `json:"id"`
	ClientName  string   `json:"client_name"`
	Status      string   `json:"status"`
	IsProject   bool     `json:"is_project"`
	TotalBudget *float64 `json:"total_budget,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID         string `json:"id"`
	CaseID     string `json:"case_id"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	AssignedTo string `json:"assigned_to"`
}

// ActivityRecord is one ledger entry.
type ActivityRecord struct {
	ID        string         `json:"id"`
	CaseID    string         `json:"case_id"`
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Action    string         `json:"action"`
	UserID    string         `json:"user_id"`
	Timestamp string         `json:"timestamp"`
	Notes     string         `json:"notes,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// RfqItem is one line in an RFQ with its price snapshot.
type RfqItem struct {
	ItemID   string  `json:"item_id"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Rfq represents the API RFQ model.
type Rfq struct {
	ID              string    `json:"id"`
	CaseID          string    `json:"case_id"`
	Items           []RfqItem `json:"items"`
	VendorIDs       []string  `json:"vendor_ids"`
	Status          string    `json:"status"`
	BiddingDeadline string    `json:"bidding_deadline"`
}

// RfqInvite is one vendor invitation on an RFQ.
type RfqInvite struct {
	ID       string `json:"id"`
	RfqID    string `json:"rfq_id"`
	VendorID string `json:"vendor_id"`
	SentAt   string `json:"sent_at"`
}

// RfqDetail pairs an RFQ with its invites.
type RfqDetail struct {
	Rfq     Rfq         `json:"rfq"`
	Invites []RfqInvite `json:"invites"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateEnquiry records an incoming client request.
func (c *Client) CreateEnquiry(ctx context.Context, clientName, clientEmail, budget string) (Enquiry, error) {
	body := map[string]any{
		"client_name":  clientName,
		"client_email": clientEmail,
		"budget":       budget,
	}
	var resp Enquiry
	err := c.do(ctx, http.MethodPost, "enquiries", body, &resp)
	return resp, err
}

// LeadFields are optional overrides for the case a conversion creates.
type LeadFields struct {
	AssignedSales string   `json:"assigned_sales,omitempty"`
	TotalBudget   *float64 `json:"total_budget,omitempty"`
}

// ConvertEnquiry converts an enquiry into a LEAD case, applying the lead
// overrides. Converting an already converted enquiry returns the existing
// case.
func (c *Client) ConvertEnquiry(ctx context.Context, enquiryID string, lead LeadFields) (Case, error) {
	var resp Case
	endpoint := fmt.Sprintf("enquiries/%s/convert", url.PathEscape(enquiryID))
	err := c.do(ctx, http.MethodPost, endpoint, lead, &resp)
	return resp, err
}

// GetCase fetches a case by id.
func (c *Client) GetCase(ctx context.Context, id string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodGet, "cases/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListCases returns cases, optionally filtered by pipeline stage.
func (c *Client) ListCases(ctx context.Context, status string) ([]Case, error) {
	var resp struct {
		Items []Case `json:"items"`
	}
	endpoint := "cases"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// SetStatus sets a case's pipeline stage.
func (c *Client) SetStatus(ctx context.Context, caseID, status string) (Case, error) {
	var resp Case
	endpoint := fmt.Sprintf("cases/%s/status", url.PathEscape(caseID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// AssignTask assigns a task on a case. The title drives the case's next
// pipeline stage server-side.
func (c *Client) AssignTask(ctx context.Context, caseID, title, assignedTo string) (Task, error) {
	body := map[string]any{
		"title":       title,
		"assigned_to": assignedTo,
	}
	var resp Task
	endpoint := fmt.Sprintf("cases/%s/tasks", url.PathEscape(caseID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// FlipToProject flips a case into a project. Flipping twice is a no-op.
func (c *Client) FlipToProject(ctx context.Context, caseID string) (Case, error) {
	var resp Case
	endpoint := fmt.Sprintf("cases/%s/flip", url.PathEscape(caseID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// AddNote appends a note record to a case's ledger.
func (c *Client) AddNote(ctx context.Context, caseID, text string) (string, error) {
	var resp struct {
		RecordID string `json:"record_id"`
	}
	endpoint := fmt.Sprintf("cases/%s/notes", url.PathEscape(caseID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"text": text}, &resp)
	return resp.RecordID, err
}

// Activity returns a case's ledger, oldest first. AfterSeq resumes past a
// cursor for incremental reads.
func (c *Client) Activity(ctx context.Context, caseID string, limit int, afterSeq int64) ([]ActivityRecord, error) {
	var resp struct {
		Items []ActivityRecord `json:"items"`
	}
	endpoint := fmt.Sprintf("cases/%s/activity", url.PathEscape(caseID))
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if afterSeq > 0 {
		params.Set("after_seq", fmt.Sprint(afterSeq))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// OpenRfq opens a request for quotation on a case.
func (c *Client) OpenRfq(ctx context.Context, caseID string, items []RfqItem, vendorIDs []string, biddingDeadline string) (Rfq, error) {
	body := map[string]any{
		"items":            items,
		"vendor_ids":       vendorIDs,
		"bidding_deadline": biddingDeadline,
	}
	var resp Rfq
	endpoint := fmt.Sprintf("cases/%s/rfqs", url.PathEscape(caseID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// GetRfq fetches an RFQ with its vendor invites.
func (c *Client) GetRfq(ctx context.Context, id string) (RfqDetail, error) {
	var resp RfqDetail
	err := c.do(ctx, http.MethodGet, "rfqs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
