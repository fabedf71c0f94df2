package httpclient

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseResponse parses the response body based on content type
func ParseResponse(resp *Response) error {
	if len(resp.Body) == 0 {
		return nil
	}

	contentType := strings.ToLower(resp.ContentType)

	switch {
	case strings.Contains(contentType, "application/json"), strings.Contains(contentType, "text/json"):
		var result any
		if err := json.Unmarshal(resp.Body, &result); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
		resp.BodyJSON = result
		return nil
	case strings.Contains(contentType, "text/"):
		resp.BodyJSON = string(resp.Body)
		return nil
	default:
		// Binary or unknown - base64 encode
		resp.BodyJSON = map[string]any{
			"_binary":       true,
			"_content_type": resp.ContentType,
			"_base64":       base64.StdEncoding.EncodeToString(resp.Body),
			"_size":         len(resp.Body),
		}
		return nil
	}
}

// IsSuccessStatus returns true if the status code indicates success
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsRetryableStatus returns true if the status code indicates a retryable error
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
