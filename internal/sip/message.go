// Package sip implements a minimal SIP registrar front end. It parses
// REGISTER requests, challenges clients with digest nonces, and defers
// the credential check to the verification service.
package sip

import (
	"fmt"
	"strconv"
	"strings"
)

// Request is a parsed SIP request.
type Request struct {
	Method        string
	URI           string
	Proto         string
	Headers       map[string]string
	Authorization map[string]string
	Body          []byte
}

// GetHeader returns the value of a header, case-insensitively.
func (r *Request) GetHeader(name string) string {
	return r.Headers[canonicalHeader(name)]
}

// ParseRequest parses a raw SIP request from a string.
func ParseRequest(raw string) (*Request, error) {
	lines := strings.Split(raw, "\r\n")
	if len(lines) < 1 || lines[0] == "" {
		return nil, fmt.Errorf("empty request")
	}

	reqLine := strings.Split(lines[0], " ")
	if len(reqLine) != 3 {
		return nil, fmt.Errorf("invalid request line: %s", lines[0])
	}

	req := &Request{
		Method:  reqLine[0],
		URI:     reqLine[1],
		Proto:   reqLine[2],
		Headers: make(map[string]string),
	}

	bodyStart := -1
	for i, line := range lines[1:] {
		if line == "" {
			bodyStart = i + 2
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue // Malformed header
		}
		key := canonicalHeader(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		req.Headers[key] = value

		if key == "Authorization" {
			req.Authorization = parseAuthHeader(value)
		}
	}

	if bodyStart > 0 && bodyStart < len(lines) {
		req.Body = []byte(strings.Join(lines[bodyStart:], "\r\n"))
	}

	if req.Method == "" {
		return nil, fmt.Errorf("missing method")
	}

	return req, nil
}

// parseAuthHeader parses the Digest Authorization header value.
func parseAuthHeader(headerValue string) map[string]string {
	result := make(map[string]string)
	if !strings.HasPrefix(headerValue, "Digest ") {
		return result
	}
	headerValue = strings.TrimPrefix(headerValue, "Digest ")

	// Commas inside quoted values (the uri parameter can carry them)
	// are rare for REGISTER; a simple split matches what deployed
	// clients send.
	parts := strings.Split(headerValue, ",")
	for _, part := range parts {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 {
			key := strings.TrimSpace(kv[0])
			value := strings.Trim(strings.TrimSpace(kv[1]), `"`)
			result[key] = value
		}
	}
	return result
}

// Expires returns the registration lifetime from the Contact or
// Expires header, defaulting to 3600 seconds.
func (r *Request) Expires() int {
	expires := 3600
	contactHeader := r.GetHeader("Contact")
	if strings.Contains(contactHeader, "expires=") {
		for _, p := range strings.Split(contactHeader, ";") {
			if strings.HasPrefix(p, "expires=") {
				if exp, err := strconv.Atoi(strings.TrimPrefix(p, "expires=")); err == nil {
					return exp
				}
			}
		}
	}
	if expStr := r.GetHeader("Expires"); expStr != "" {
		if exp, err := strconv.Atoi(expStr); err == nil {
			expires = exp
		}
	}
	return expires
}

// canonicalHeader normalizes a header name to Sip-Case so lookups are
// case-insensitive without lowercasing what goes back on the wire.
func canonicalHeader(name string) string {
	parts := strings.Split(strings.ToLower(name), "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "-")
}

// Response is a SIP response message.
type Response struct {
	Proto      string
	StatusCode int
	Reason     string
	Headers    map[string]string
	Body       []byte
}

// String returns the wire form of the response.
func (r *Response) String() string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%s %d %s\r\n", r.Proto, r.StatusCode, r.Reason))
	for key, value := range r.Headers {
		builder.WriteString(fmt.Sprintf("%s: %s\r\n", canonicalHeader(key), value))
	}
	builder.WriteString(fmt.Sprintf("Content-Length: %d\r\n", len(r.Body)))
	builder.WriteString("\r\n")
	builder.Write(r.Body)
	return builder.String()
}

// BuildResponse constructs a response for req, copying the headers a
// registrar must echo and merging in extraHeaders.
func BuildResponse(statusCode int, statusText string, req *Request, extraHeaders map[string]string) *Response {
	resp := &Response{
		Proto:      req.Proto,
		StatusCode: statusCode,
		Reason:     statusText,
		Headers:    make(map[string]string),
		Body:       []byte{},
	}

	for _, h := range []string{"Via", "From", "To", "Call-Id", "Cseq"} {
		if val := req.GetHeader(h); val != "" {
			if h == "To" && !strings.Contains(val, "tag=") {
				val = fmt.Sprintf("%s;tag=%s", val, newTag())
			}
			resp.Headers[h] = val
		}
	}

	for key, val := range extraHeaders {
		resp.Headers[key] = val
	}

	return resp
}
