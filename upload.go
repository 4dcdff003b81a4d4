package vortexstats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"cdr.dev/slog/v3"
	"golang.org/x/xerrors"
)

const (
	DefaultUploadEndpoint = "https://vortex-dataview.vercel.app/api/submit"
	DefaultViewerURL      = "https://vortex-dataview.vercel.app/"

	maxResponseBody = 1 << 20
)

// ErrMissingReportID is returned when the endpoint accepted the upload but
// its response carried no usable "id".
var ErrMissingReportID = xerrors.New("upload response did not contain a report id")

// NetworkError wraps a transport failure while talking to the endpoint.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("upload to %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server responded with %d: %s", e.StatusCode, e.Body)
}

// OwnerDetails is one owner's entry in an uploaded report.
type OwnerDetails struct {
	TotalInteractions    int64            `json:"totalInteractions"`
	InteractionBreakdown map[string]int64 `json:"interactionBreakdown"`
}

// Report reshapes a snapshot owner-first.
type Report map[string]OwnerDetails

// BuildReport groups every non-empty category count under its owner.
// Breakdown keys are Category.ReportName values.
func BuildReport(s Snapshot) Report {
	report := Report{}
	for _, c := range Categories() {
		for owner, count := range s.counts[c] {
			details, ok := report[owner]
			if !ok {
				details = OwnerDetails{InteractionBreakdown: map[string]int64{}}
			}
			details.TotalInteractions += count
			details.InteractionBreakdown[c.ReportName()] = count
			report[owner] = details
		}
	}
	return report
}

// UploadResult is a successful upload.
type UploadResult struct {
	ID  string
	URL string
}

// Uploader sends reports to the data viewer.
type Uploader struct {
	Client    *http.Client
	Endpoint  string
	ViewerURL string
	Logger    slog.Logger
}

// NewUploader returns an uploader for the default endpoint.
func NewUploader(client *http.Client, logger slog.Logger) *Uploader {
	return &Uploader{
		Client:    client,
		Endpoint:  DefaultUploadEndpoint,
		ViewerURL: DefaultViewerURL,
		Logger:    logger,
	}
}

// Upload posts the owner-first report for s and returns the viewer link.
// It never touches the store the snapshot came from.
func (u *Uploader) Upload(ctx context.Context, s Snapshot) (UploadResult, error) {
	payload, err := json.Marshal(BuildReport(s))
	if err != nil {
		return UploadResult{}, xerrors.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return UploadResult{}, xerrors.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client().Do(req)
	if err != nil {
		u.Logger.Warn(ctx, "send report", slog.F("endpoint", u.endpoint()), slog.Error(err))
		return UploadResult{}, &NetworkError{Endpoint: u.endpoint(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return UploadResult{}, &NetworkError{Endpoint: u.endpoint(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		u.Logger.Warn(ctx, "bad response from report endpoint", slog.F("status", resp.StatusCode))
		return UploadResult{}, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.ID == "" {
		u.Logger.Warn(ctx, "parse report response", slog.F("body", string(body)))
		return UploadResult{}, ErrMissingReportID
	}

	link, err := u.viewerLink(decoded.ID)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{ID: decoded.ID, URL: link}, nil
}

// UploadAsync runs Upload on its own goroutine and hands the outcome to done.
func (u *Uploader) UploadAsync(ctx context.Context, s Snapshot, done func(UploadResult, error)) {
	go func() {
		result, err := u.Upload(ctx, s)
		if done != nil {
			done(result, err)
		}
	}()
}

func (u *Uploader) viewerLink(id string) (string, error) {
	base := u.ViewerURL
	if base == "" {
		base = DefaultViewerURL
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", xerrors.Errorf("parse viewer url: %w", err)
	}
	query := parsed.Query()
	query.Set("id", id)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (u *Uploader) endpoint() string {
	if u.Endpoint == "" {
		return DefaultUploadEndpoint
	}
	return u.Endpoint
}

func (u *Uploader) client() *http.Client {
	if u.Client == nil {
		return http.DefaultClient
	}
	return u.Client
}
