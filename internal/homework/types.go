package homework

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Known review statuses.
const (
	StatusReviewing = "reviewing"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

// Response is a validated homework status payload.
type Response struct {
	// Homeworks is newest first and may be empty.
	Homeworks []Homework `json:"homeworks"`
	// CurrentDate is the from_date to use for the next request.
	CurrentDate int64 `json:"current_date"`
}

// Latest returns the newest homework, if any.
func (r *Response) Latest() (Homework, bool) {
	if r == nil || len(r.Homeworks) == 0 {
		return Homework{}, false
	}
	return r.Homeworks[0], true
}

// Homework is one submission record. HasName and HasStatus tell an absent
// key apart from an empty value.
type Homework struct {
	ID              int64  `json:"id,omitempty"`
	Name            string `json:"homework_name"`
	Status          string `json:"status"`
	LessonName      string `json:"lesson_name,omitempty"`
	ReviewerComment string `json:"reviewer_comment,omitempty"`
	DateUpdated     string `json:"date_updated,omitempty"`

	HasName   bool `json:"-"`
	HasStatus bool `json:"-"`

	// decodeErr is set for a list element that is not a valid record.
	decodeErr error
}

func (h *Homework) UnmarshalJSON(b []byte) error {
	var aux struct {
		ID              int64   `json:"id"`
		Name            *string `json:"homework_name"`
		Status          *string `json:"status"`
		LessonName      string  `json:"lesson_name"`
		ReviewerComment string  `json:"reviewer_comment"`
		DateUpdated     string  `json:"date_updated"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*h = Homework{
		ID:              aux.ID,
		LessonName:      aux.LessonName,
		ReviewerComment: aux.ReviewerComment,
		DateUpdated:     aux.DateUpdated,
	}
	if aux.Name != nil {
		h.Name, h.HasName = *aux.Name, true
	}
	if aux.Status != nil {
		h.Status, h.HasStatus = *aux.Status, true
	}
	return nil
}

// DecodeResponse validates the payload shape and decodes it.
func DecodeResponse(body []byte) (*Response, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, fmt.Errorf("%w: response is not a json object", ErrMalformedJSON)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty response object", ErrMalformedJSON)
	}
	_, hasCode := raw["code"]
	_, hasErr := raw["error"]
	if hasCode || hasErr {
		return nil, apiError(raw)
	}

	hwRaw, ok := raw["homeworks"]
	if !ok {
		return nil, &MissingKeyError{Key: "homeworks"}
	}
	dateRaw, ok := raw["current_date"]
	if !ok {
		return nil, &MissingKeyError{Key: "current_date"}
	}

	hwRaw = bytes.TrimSpace(hwRaw)
	if len(hwRaw) == 0 || hwRaw[0] != '[' {
		return nil, fmt.Errorf("%w: homeworks is not a list", ErrMalformedJSON)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(hwRaw, &items); err != nil {
		return nil, fmt.Errorf("%w: homeworks: %v", ErrMalformedJSON, err)
	}
	out := &Response{Homeworks: make([]Homework, len(items))}
	for i, item := range items {
		if err := json.Unmarshal(item, &out.Homeworks[i]); err != nil {
			out.Homeworks[i] = Homework{decodeErr: err}
		}
	}
	dateRaw = bytes.TrimSpace(dateRaw)
	if bytes.Equal(dateRaw, []byte("null")) {
		return nil, fmt.Errorf("%w: current_date is null", ErrMalformedJSON)
	}
	if err := json.Unmarshal(dateRaw, &out.CurrentDate); err != nil {
		return nil, fmt.Errorf("%w: current_date is not an integer", ErrMalformedJSON)
	}
	if out.CurrentDate <= 0 {
		return nil, fmt.Errorf("%w: current_date %d is not positive", ErrMalformedJSON, out.CurrentDate)
	}
	return out, nil
}

func apiError(raw map[string]json.RawMessage) error {
	e := &APIError{}
	if code, ok := raw["code"]; ok {
		e.Code = rawString(code)
	}
	if msg, ok := raw["message"]; ok {
		e.Message = rawString(msg)
	}
	// {"code": "...", "error": {"error": "..."}}
	if nested, ok := raw["error"]; ok && e.Message == "" {
		var inner struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(nested, &inner) == nil && inner.Error != "" {
			e.Message = inner.Error
		} else {
			e.Message = rawString(nested)
		}
	}
	return e
}

func rawString(r json.RawMessage) string {
	var s string
	if json.Unmarshal(r, &s) == nil {
		return s
	}
	return string(bytes.TrimSpace(r))
}
