package api

import (
	"net/url"
	"strconv"
	"strings"

	"encodefleet/internal/queue"
)

// Envelope statuses.
const (
	StatusSuccessful = "SUCCESSFUL"
	StatusError      = "ERROR"
)

// Pagination defaults.
const (
	DefaultLimit = 25
	DefaultPage  = 1
)

// Envelope wraps every API response.
type Envelope struct {
	Metadata   Metadata    `json:"metadata"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Metadata describes the server and the outcome of the request.
type Metadata struct {
	Version string     `json:"version"`
	Env     string     `json:"env"`
	Status  string     `json:"status"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the public part of an Error.
type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Pagination describes the page returned by a list endpoint.
type Pagination struct {
	Limit      int  `json:"limit"`
	Page       int  `json:"page"`
	Offset     int  `json:"offset"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
	NextPage   *int `json:"next_page"`
	PrevPage   *int `json:"prev_page"`
}

// PageRequest is the pagination input of a list endpoint.
type PageRequest struct {
	Limit int
	Page  int
}

// ParsePageRequest reads limit and page from query values. Missing values
// use the defaults; values below one are raised to one.
func ParsePageRequest(values url.Values) (PageRequest, error) {
	var (
		req PageRequest
		err error
	)
	if req.Limit, err = intParam(values, "limit", DefaultLimit); err != nil {
		return PageRequest{}, err
	}
	if req.Page, err = intParam(values, "page", DefaultPage); err != nil {
		return PageRequest{}, err
	}
	return req.normalized(), nil
}

func intParam(values url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, Validation(name + " must be an integer")
	}
	return v, nil
}

func (p PageRequest) normalized() PageRequest {
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Page < 1 {
		p.Page = 1
	}
	return p
}

// Offset is the number of rows skipped before the page.
func (p PageRequest) Offset() int {
	p = p.normalized()
	return (p.Page - 1) * p.Limit
}

// Query converts the request into store bounds.
func (p PageRequest) Query() queue.Page {
	p = p.normalized()
	return queue.Page{Limit: p.Limit, Offset: p.Offset()}
}

// NewPagination describes page p of a result with total rows.
func NewPagination(p PageRequest, total int) *Pagination {
	p = p.normalized()
	if total < 0 {
		total = 0
	}
	totalPages := (total + p.Limit - 1) / p.Limit
	out := &Pagination{
		Limit:      p.Limit,
		Page:       p.Page,
		Offset:     p.Offset(),
		Total:      total,
		TotalPages: totalPages,
		HasMore:    p.Page < totalPages,
	}
	if out.HasMore {
		next := p.Page + 1
		out.NextPage = &next
	}
	if p.Page > 1 {
		prev := p.Page - 1
		out.PrevPage = &prev
	}
	return out
}

// Responder builds envelopes stamped with server metadata.
type Responder struct {
	Version string
	Env     string
}

func (r Responder) metadata(status string) Metadata {
	return Metadata{Version: r.Version, Env: r.Env, Status: status}
}

// OK wraps data in a successful envelope.
func (r Responder) OK(data any) Envelope {
	return Envelope{Metadata: r.metadata(StatusSuccessful), Data: data}
}

// Message wraps a confirmation message and optional data.
func (r Responder) Message(message string, data any) Envelope {
	return Envelope{Metadata: r.metadata(StatusSuccessful), Data: data, Message: message}
}

// Page wraps one page of a list.
func (r Responder) Page(data any, pagination *Pagination) Envelope {
	return Envelope{Metadata: r.metadata(StatusSuccessful), Data: data, Pagination: pagination}
}

// Fail wraps an error. The message is the public one from Classify.
func (r Responder) Fail(apiErr *Error) Envelope {
	meta := r.metadata(StatusError)
	meta.Error = &ErrorBody{Code: apiErr.Code, Message: apiErr.Message}
	return Envelope{Metadata: meta}
}
