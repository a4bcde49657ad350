package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

// FailureCause classifies a transport failure at the boundary, so the queue
// dispatches retry-vs-terminal logic on a tag instead of inspecting flags
// after the fact.
type FailureCause int

const (
	// CauseNetwork is a connection-level failure; always retryable.
	CauseNetwork FailureCause = iota
	// CauseHTTP is a non-2xx response; retryable only when transient.
	CauseHTTP
	// CauseCancelled is an explicit abort; never retried, never counted
	// against the retry budget.
	CauseCancelled
)

// TransportError is the tagged failure type returned by Client.Upload.
type TransportError struct {
	Cause  FailureCause
	Status int // HTTP status code when Cause == CauseHTTP
	msg    string
}

func (e *TransportError) Error() string { return e.msg }

// Retryable reports whether resubmitting the same request could succeed.
// 4xx responses are permanently invalid, except 408 and 429.
func (e *TransportError) Retryable() bool {
	switch e.Cause {
	case CauseCancelled:
		return false
	case CauseNetwork:
		return true
	default:
		return e.Status >= 500 ||
			e.Status == http.StatusRequestTimeout ||
			e.Status == http.StatusTooManyRequests
	}
}

// Client performs multipart uploads against the ingestion endpoint.
type Client struct {
	EndpointURL string
	Token       string // optional bearer token for the upload API
	HTTPClient  *http.Client
}

// NewClient creates a Client for the given upload endpoint URL.
func NewClient(endpointURL string) *Client {
	return &Client{
		EndpointURL: endpointURL,
		HTTPClient:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// uploadEnvelope mirrors the server's response envelope.
type uploadEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
	Error string `json:"error"`
}

// Upload streams file as multipart/form-data to the ingestion endpoint and
// returns the stored-object URL. progress, if non-nil, is invoked with a
// monotonically increasing 0-100 percentage as bytes are handed to the
// transport — an approximation of wire progress, not an acknowledgement
// from the server.
func (c *Client) Upload(ctx context.Context, file File, category string, progress func(percent int)) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", &TransportError{Cause: CauseNetwork, msg: fmt.Sprintf("open payload: %v", err)}
	}
	defer src.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		if err := mw.WriteField("category", category); err != nil {
			pw.CloseWithError(err)
			return
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
		header.Set("Content-Type", file.ContentType)
		part, err := mw.CreatePart(header)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		counted := &progressReader{r: src, total: file.Size, report: progress}
		if _, err := io.Copy(part, counted); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.EndpointURL, pr)
	if err != nil {
		return "", &TransportError{Cause: CauseNetwork, msg: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return "", &TransportError{Cause: CauseCancelled, msg: "upload cancelled"}
		}
		return "", &TransportError{Cause: CauseNetwork, msg: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &TransportError{
			Cause:  CauseHTTP,
			Status: resp.StatusCode,
			msg:    serverMessage(body, resp.StatusCode),
		}
	}

	var env uploadEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Data.URL == "" {
		return "", &TransportError{Cause: CauseNetwork, msg: "malformed server response"}
	}
	return env.Data.URL, nil
}

// serverMessage extracts the envelope error, falling back to the status text.
func serverMessage(body []byte, status int) string {
	var env uploadEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		return env.Error
	}
	return fmt.Sprintf("server returned %d %s", status, http.StatusText(status))
}

// progressReader counts bytes flowing into the multipart writer and reports
// a non-decreasing percentage of the file size.
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.report != nil && p.total > 0 {
		p.sent += int64(n)
		pct := int(p.sent * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct > p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}
