package httpclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/erp/crm/internal/domain/shared"
)

// Response is a completed HTTP exchange
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	RequestID  string
}

// IsSuccess reports a 2xx status
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body into out. An empty body leaves out untouched.
func (r *Response) Decode(out any) error {
	if out == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// errorFromResponse maps a non-2xx response onto the tagged error type.
// The backend answers either {"detail": "...", "code": "..."} or a map of
// field name to messages.
func errorFromResponse(resp *Response) *shared.APIError {
	apiErr := &shared.APIError{
		Kind:   shared.KindForStatus(resp.StatusCode),
		Status: resp.StatusCode,
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return apiErr
	}

	for name, value := range raw {
		switch name {
		case "detail":
			var detail string
			if json.Unmarshal(value, &detail) == nil {
				apiErr.Detail = detail
			}
		case "code":
			var code string
			if json.Unmarshal(value, &code) == nil {
				apiErr.Code = code
			}
		default:
			if msgs := fieldMessages(value); len(msgs) > 0 {
				if apiErr.Fields == nil {
					apiErr.Fields = make(map[string][]string)
				}
				apiErr.Fields[name] = msgs
			}
		}
	}
	return apiErr
}

func fieldMessages(value json.RawMessage) []string {
	var list []string
	if json.Unmarshal(value, &list) == nil {
		return list
	}
	var single string
	if json.Unmarshal(value, &single) == nil && single != "" {
		return []string{single}
	}
	return nil
}
