package httpclient

import "fmt"

// HTTPError reports a response with an unexpected status code
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// ServerError reports whether the remote side failed (5xx)
func (e *HTTPError) ServerError() bool {
	return e.StatusCode >= 500
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// CheckStatus returns an *HTTPError unless resp is 2xx
func CheckStatus(url string, resp *Response) error {
	if resp.OK() {
		return nil
	}
	return NewHTTPError(resp.StatusCode, url, resp.Status)
}
