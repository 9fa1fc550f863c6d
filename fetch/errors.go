package fetch

import "fmt"

// RequestError is returned when a page could not be requested, including when the
// context expires part way through the loop.
type RequestError struct {
	URL  string
	Page int
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request for page %v (%v) failed: %v", e.Page, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// DecodeError is returned when a 200 response body could not be decoded.
type DecodeError struct {
	URL    string
	Page   int
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unable to decode page %v (%v) as %v: %v", e.Page, e.URL, e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
