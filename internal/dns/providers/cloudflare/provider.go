package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go_flare/internal/dnstypes"
)

const (
	cloudflareAPIBase = "https://api.cloudflare.com/client/v4"
	requestTimeout    = 10 * time.Second
	zonesPerPage      = 50

	// codeRateLimited is returned with HTTP 429 when the account quota is hit
	codeRateLimited = 971
	// ttlAutomatic lets Cloudflare choose the TTL
	ttlAutomatic = 1
)

// ErrNotFound is returned when a DNS record is not found
var ErrNotFound = errors.New("DNS record not found")

// CloudflareProvider implements dns.Provider for Cloudflare API
type CloudflareProvider struct {
	email    string
	apiToken string
	baseURL  string
	client   *http.Client
}

// NewCloudflareProvider creates a new Cloudflare DNS provider.
// With an empty email the token is sent as a bearer API token,
// otherwise email + global key headers are used.
func NewCloudflareProvider(email, apiToken string) *CloudflareProvider {
	return &CloudflareProvider{
		email:    email,
		apiToken: apiToken,
		baseURL:  cloudflareAPIBase,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// WithBaseURL points the provider at a different API endpoint
func (p *CloudflareProvider) WithBaseURL(baseURL string) *CloudflareProvider {
	p.baseURL = baseURL
	return p
}

// WithHTTPClient replaces the HTTP client
func (p *CloudflareProvider) WithHTTPClient(client *http.Client) *CloudflareProvider {
	p.client = client
	return p
}

// CloudflareRecord represents a Cloudflare DNS record (API response)
type CloudflareRecord struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

// CloudflareZone represents a Cloudflare zone (API response)
type CloudflareZone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// CloudflareResponse represents a Cloudflare API response
type CloudflareResponse struct {
	Success    bool              `json:"success"`
	Errors     []CloudflareError `json:"errors"`
	Result     json.RawMessage   `json:"result"`
	ResultInfo *ResultInfo       `json:"result_info"`
}

// ResultInfo is the pagination block of list responses
type ResultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
}

// CloudflareError represents a Cloudflare API error
type CloudflareError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// UpsertRecord creates the record or updates the existing record of the
// same type and name so that it carries record.Value.
func (p *CloudflareProvider) UpsertRecord(ctx context.Context, zoneID string, record dnstypes.DNSRecord) (dnstypes.UpsertResult, error) {
	existing, err := p.findRecord(ctx, zoneID, string(record.Type), record.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return dnstypes.UpsertResult{}, err
	}

	payload := recordPayload(record)

	if existing != nil {
		if existing.Content == payload.Content && existing.TTL == payload.TTL && existing.Proxied == payload.Proxied {
			return dnstypes.UpsertResult{RecordID: existing.ID, Changed: false}, nil
		}

		var updated CloudflareRecord
		endpoint := fmt.Sprintf("%s/zones/%s/dns_records/%s", p.baseURL, url.PathEscape(zoneID), url.PathEscape(existing.ID))
		if _, err := p.do(ctx, http.MethodPut, endpoint, payload, &updated); err != nil {
			return dnstypes.UpsertResult{RecordID: existing.ID}, err
		}
		return dnstypes.UpsertResult{RecordID: existing.ID, Changed: true}, nil
	}

	var created CloudflareRecord
	endpoint := fmt.Sprintf("%s/zones/%s/dns_records", p.baseURL, url.PathEscape(zoneID))
	if _, err := p.do(ctx, http.MethodPost, endpoint, payload, &created); err != nil {
		return dnstypes.UpsertResult{}, err
	}

	return dnstypes.UpsertResult{RecordID: created.ID, Changed: true}, nil
}

// ListZones lists all zones the credentials can see
func (p *CloudflareProvider) ListZones(ctx context.Context) ([]dnstypes.Zone, error) {
	var zones []dnstypes.Zone

	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(zonesPerPage))
		endpoint := fmt.Sprintf("%s/zones?%s", p.baseURL, q.Encode())

		var result []CloudflareZone
		info, err := p.do(ctx, http.MethodGet, endpoint, nil, &result)
		if err != nil {
			return nil, fmt.Errorf("failed to list zones (page %d): %w", page, err)
		}

		for _, z := range result {
			zones = append(zones, dnstypes.Zone{ID: z.ID, Name: z.Name})
		}

		if info == nil || page >= info.TotalPages || len(result) == 0 {
			break
		}
	}

	return zones, nil
}

// findRecord finds a DNS record by type and name
func (p *CloudflareProvider) findRecord(ctx context.Context, zoneID, recordType, name string) (*CloudflareRecord, error) {
	q := url.Values{}
	q.Set("type", recordType)
	q.Set("name", name)
	endpoint := fmt.Sprintf("%s/zones/%s/dns_records?%s", p.baseURL, url.PathEscape(zoneID), q.Encode())

	var records []CloudflareRecord
	if _, err := p.do(ctx, http.MethodGet, endpoint, nil, &records); err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, ErrNotFound
	}

	return &records[0], nil
}

// recordBody is the body sent on create and update
type recordBody struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

func recordPayload(record dnstypes.DNSRecord) recordBody {
	ttl := record.TTL
	if ttl <= 0 {
		ttl = ttlAutomatic
	}
	return recordBody{
		Type:    string(record.Type),
		Name:    record.Name,
		Content: record.Value,
		TTL:     ttl,
		Proxied: record.Proxied,
	}
}

// do sends one API request and decodes the result into out.
// Every returned error is a *dnstypes.ProviderError.
func (p *CloudflareProvider) do(ctx context.Context, method, endpoint string, body any, out any) (*ResultInfo, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &dnstypes.ProviderError{Class: dnstypes.ClassPermanent, Message: "failed to marshal payload", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &dnstypes.ProviderError{Class: dnstypes.ClassPermanent, Message: "failed to create request", Err: err}
	}
	p.setAuth(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, dnstypes.NewTransientError("failed to send request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &dnstypes.ProviderError{Class: classify(resp.StatusCode, nil), HTTPStatus: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	var cfResp CloudflareResponse
	if err := json.Unmarshal(respBody, &cfResp); err != nil {
		return nil, &dnstypes.ProviderError{
			Class:      classify(resp.StatusCode, nil),
			HTTPStatus: resp.StatusCode,
			Message:    fmt.Sprintf("failed to parse response: %v", err),
			Err:        err,
		}
	}

	if !cfResp.Success || resp.StatusCode >= http.StatusBadRequest {
		pe := &dnstypes.ProviderError{
			Class:      classify(resp.StatusCode, cfResp.Errors),
			HTTPStatus: resp.StatusCode,
			Message:    "cloudflare API error: " + formatErrors(cfResp.Errors),
		}
		if len(cfResp.Errors) > 0 {
			pe.Code = cfResp.Errors[0].Code
		}
		return nil, pe
	}

	if out != nil && len(cfResp.Result) > 0 {
		if err := json.Unmarshal(cfResp.Result, out); err != nil {
			return nil, &dnstypes.ProviderError{Class: dnstypes.ClassTransient, HTTPStatus: resp.StatusCode, Message: "failed to parse result", Err: err}
		}
	}

	return cfResp.ResultInfo, nil
}

func (p *CloudflareProvider) setAuth(req *http.Request) {
	if p.email != "" {
		req.Header.Set("X-Auth-Email", p.email)
		req.Header.Set("X-Auth-Key", p.apiToken)
		return
	}
	req.Header.Set("Authorization", "Bearer "+p.apiToken)
}

// classify maps a Cloudflare response onto a retry class
func classify(status int, errs []CloudflareError) dnstypes.ErrorClass {
	if status == http.StatusTooManyRequests {
		return dnstypes.ClassRateLimited
	}
	for _, e := range errs {
		if e.Code == codeRateLimited {
			return dnstypes.ClassRateLimited
		}
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return dnstypes.ClassPermanent
	}
	return dnstypes.ClassTransient
}

// formatErrors formats Cloudflare API errors into a readable string
func formatErrors(errors []CloudflareError) string {
	if len(errors) == 0 {
		return "unknown error"
	}

	var errMsgs []string
	for _, e := range errors {
		errMsgs = append(errMsgs, fmt.Sprintf("[%d] %s", e.Code, e.Message))
	}

	return fmt.Sprintf("%v", errMsgs)
}
