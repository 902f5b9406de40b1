package flares

import (
	"errors"
	"fmt"
	"strings"

	"go_flare/internal/dispatcher"
	"go_flare/internal/dns"
	"go_flare/internal/dnstypes"
	"go_flare/internal/httpx"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MaxBatchSize is the largest number of events accepted by one batch call
const MaxBatchSize = 100

// Submitter accepts update requests for dispatch
type Submitter interface {
	Submit(req dnstypes.UpdateRequest) error
}

// FlareRequest is one "IP changed" event
type FlareRequest struct {
	Domain        string `json:"domain" binding:"required"`
	Zone          string `json:"zone"` // optional; makes Domain relative to it
	IP            string `json:"ip" binding:"required"`
	CorrelationID string `json:"correlationId"`
	Priority      int    `json:"priority"`
	TTL           *int   `json:"ttl"`
	Proxied       bool   `json:"proxied"`
	RetryBudget   *int   `json:"retryBudget"`
}

// BatchRequest carries several flare events
type BatchRequest struct {
	Flares []FlareRequest `json:"flares" binding:"required,min=1"`
}

// FlareResponse describes an accepted flare
type FlareResponse struct {
	RequestID  string              `json:"requestId"`
	TargetName string              `json:"targetName"`
	RecordType dnstypes.RecordType `json:"recordType"`
}

// BatchItem is the per-event result of a batch call
type BatchItem struct {
	Index int `json:"index"`
	*FlareResponse
	Error string `json:"error,omitempty"`
}

// BatchResponse summarises a batch call
type BatchResponse struct {
	Accepted int         `json:"accepted"`
	Rejected int         `json:"rejected"`
	Items    []BatchItem `json:"items"`
}

// Handler handles flare ingest
type Handler struct {
	submitter Submitter
	logger    *logrus.Entry
}

// NewHandler creates a flare handler
func NewHandler(submitter Submitter, logger *logrus.Entry) *Handler {
	return &Handler{
		submitter: submitter,
		logger:    logger.WithField("component", "flare-api"),
	}
}

// Create handles POST /api/v1/flares
func (h *Handler) Create(c *gin.Context) {
	var req FlareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing(err.Error()))
		return
	}

	update, err := toUpdateRequest(req)
	if err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	if err := h.submitter.Submit(update); err != nil {
		if errors.Is(err, dispatcher.ErrStopped) {
			httpx.FailErr(c, httpx.ErrUnavailable("dispatcher is not accepting flares", err))
			return
		}
		httpx.FailErr(c, httpx.ErrInternalError("failed to submit flare", err))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"request_id":     update.ID,
		"correlation_id": update.CorrelationID,
		"target":         update.TargetName,
	}).Debugf("Flare accepted: %s %s", update.RecordType, update.Content)

	httpx.Accepted(c, responseFor(update))
}

// CreateBatch handles POST /api/v1/flares/batch
func (h *Handler) CreateBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing(err.Error()))
		return
	}
	if len(req.Flares) > MaxBatchSize {
		httpx.FailErr(c, httpx.ErrParamIllegal(fmt.Sprintf("at most %d flares per batch", MaxBatchSize)))
		return
	}

	resp := BatchResponse{Items: make([]BatchItem, 0, len(req.Flares))}
	for i, flare := range req.Flares {
		item := BatchItem{Index: i}

		update, err := toUpdateRequest(flare)
		if err == nil {
			err = h.submitter.Submit(update)
		}
		if err != nil {
			if errors.Is(err, dispatcher.ErrStopped) && resp.Accepted == 0 {
				httpx.FailErr(c, httpx.ErrUnavailable("dispatcher is not accepting flares", err))
				return
			}
			item.Error = err.Error()
			resp.Rejected++
		} else {
			item.FlareResponse = responseFor(update)
			resp.Accepted++
		}
		resp.Items = append(resp.Items, item)
	}

	h.logger.Debugf("Batch accepted=%d rejected=%d", resp.Accepted, resp.Rejected)

	if resp.Accepted == 0 {
		httpx.FailErr(c, httpx.ErrParamInvalid("no flare in the batch was accepted").WithData(resp))
		return
	}
	httpx.Accepted(c, resp)
}

// toUpdateRequest maps one event to exactly one update request. Zone
// membership is not checked here; the dispatcher reports it as an outcome.
func toUpdateRequest(req FlareRequest) (dnstypes.UpdateRequest, error) {
	name := dns.CanonicalName(req.Domain)
	if req.Zone != "" && name != "" {
		name = dns.ToFQDN(req.Zone, name)
	}
	if name == "" {
		return dnstypes.UpdateRequest{}, fmt.Errorf("domain is required")
	}

	recordType, addr, err := dnstypes.RecordTypeForIP(strings.TrimSpace(req.IP))
	if err != nil {
		return dnstypes.UpdateRequest{}, err
	}

	ttl := 1
	if req.TTL != nil {
		if *req.TTL != 1 && (*req.TTL < 60 || *req.TTL > 86400) {
			return dnstypes.UpdateRequest{}, fmt.Errorf("ttl must be 1 (automatic) or between 60 and 86400, got %d", *req.TTL)
		}
		ttl = *req.TTL
	}

	if req.RetryBudget != nil && *req.RetryBudget < 0 {
		return dnstypes.UpdateRequest{}, fmt.Errorf("retryBudget must not be negative")
	}

	return dnstypes.UpdateRequest{
		ID:            uuid.NewString(),
		TargetName:    name,
		RecordType:    recordType,
		Content:       addr.String(),
		Options:       dnstypes.RecordOptions{TTL: ttl, Proxied: req.Proxied},
		Priority:      req.Priority,
		RetryBudget:   req.RetryBudget,
		CorrelationID: req.CorrelationID,
	}, nil
}

func responseFor(update dnstypes.UpdateRequest) *FlareResponse {
	return &FlareResponse{
		RequestID:  update.ID,
		TargetName: update.TargetName,
		RecordType: update.RecordType,
	}
}
