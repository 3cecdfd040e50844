// Package query forwards user questions to the question-answering API.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/metrics"
	"github.com/m3rciful/pitarabot/core/netutil"
)

const (
	storyPath    = "/v1/query_rstory"
	activityPath = "/v1/query"
)

// Sessions resolves the chat language and persona.
type Sessions interface {
	Language(ctx context.Context, chatID int64) string
	Persona(ctx context.Context, chatID int64) string
}

// Options configures the Orchestrator.
type Options struct {
	StoryBaseURL    string
	ActivityBaseURL string
	// PrimaryPersona goes to the story endpoint.
	PrimaryPersona string

	PoolSize       int
	PoolTimeout    time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AudioMaxBytes  int64

	// HTTPClient overrides the pooled client built from the timeouts.
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// Orchestrator builds query requests, calls the API and classifies failures.
type Orchestrator struct {
	opts     Options
	client   *http.Client
	sessions Sessions
}

// New returns an Orchestrator sharing one HTTP pool for every call.
func New(opts Options, sessions Sessions) *Orchestrator {
	if opts.PrimaryPersona == "" {
		opts.PrimaryPersona = "story"
	}
	if opts.AudioMaxBytes <= 0 {
		opts.AudioMaxBytes = 20 << 20
	}
	client := opts.HTTPClient
	if client == nil {
		client = buildHTTPClient(opts)
	}
	return &Orchestrator{opts: opts, client: client, sessions: sessions}
}

func buildHTTPClient(opts Options) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxConnsPerHost:       opts.PoolSize,
		MaxIdleConns:          opts.PoolSize,
		MaxIdleConnsPerHost:   opts.PoolSize,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.ReadTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   opts.PoolTimeout + opts.ConnectTimeout + opts.ReadTimeout + opts.WriteTimeout,
	}
}

// Endpoint returns the endpoint label and URL for persona.
func (o *Orchestrator) Endpoint(persona string) (string, string) {
	if persona == o.opts.PrimaryPersona {
		return EndpointStory, o.opts.StoryBaseURL + storyPath
	}
	return EndpointActivity, o.opts.ActivityBaseURL + activityPath
}

// BuildRequest renders the API body for in.
func BuildRequest(language, persona, primary string, in Input) Request {
	req := Request{
		Input:  RequestInput{Language: language},
		Output: RequestOutput{Format: FormatText},
	}
	if in.IsVoice() {
		req.Input.Audio = in.VoiceURL
		req.Output.Format = FormatAudio
	} else {
		req.Input.Text = in.Text
	}
	if persona != primary {
		req.Input.AudienceType = persona
	}
	return req
}

// Resolve sends the question to the endpoint of the chat persona.
// Failures are returned as *Error and never retried.
func (o *Orchestrator) Resolve(ctx context.Context, in Input) (Result, error) {
	language := o.sessions.Language(ctx, in.ChatID)
	persona := o.sessions.Persona(ctx, in.ChatID)
	endpoint, url := o.Endpoint(persona)
	body := BuildRequest(language, persona, o.opts.PrimaryPersona, in)

	logger.Info(ctx, logger.CompQuery, "query.request",
		slog.String("lang", language),
		slog.String("persona", persona),
		slog.String("endpoint", endpoint),
		slog.String("format", body.Output.Format),
	)

	start := time.Now()
	res, err := o.do(ctx, endpoint, url, in, body)
	took := logger.Took(start)

	outcome := "ok"
	attrs := []slog.Attr{
		slog.String("endpoint", endpoint),
		slog.Duration("duration", took),
	}
	if err != nil {
		var qe *Error
		if !errors.As(err, &qe) {
			qe = &Error{Reason: ReasonTransport, Endpoint: endpoint, Err: err}
		}
		outcome = string(qe.Reason)
		attrs = append(attrs,
			slog.String("status", "fail"),
			slog.String("err_code", qe.Code()),
			slog.String("err", netutil.ErrorString(qe)),
			slog.String("error_kind", netutil.ClassifyError(qe, qe.StatusCode)),
		)
		if qe.StatusCode != 0 {
			attrs = append(attrs, slog.Int("http_code", qe.StatusCode))
		}
		logger.Warn(ctx, logger.CompQuery, "query.response", attrs...)
	} else {
		attrs = append(attrs,
			slog.String("status", "ok"),
			slog.Bool("audio", res.AudioURL != ""),
		)
		logger.Info(ctx, logger.CompQuery, "query.response", attrs...)
	}
	o.opts.Metrics.RecordQuery(endpoint, outcome, took.Seconds())

	if err != nil {
		return Result{}, err
	}
	res.Endpoint = endpoint
	res.Language = language
	res.Persona = persona
	return res, nil
}

func (o *Orchestrator) do(ctx context.Context, endpoint, url string, in Input, body Request) (Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, &Error{Reason: ReasonTransport, Endpoint: endpoint, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, &Error{Reason: ReasonTransport, Endpoint: endpoint, Err: err}
	}
	uid := strconv.FormatInt(in.UserID, 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-source", "telegram")
	req.Header.Set("x-request-id", strconv.Itoa(in.MessageID))
	req.Header.Set("x-device-id", "d"+uid)
	req.Header.Set("x-consumer-id", uid)

	resp, err := o.client.Do(req)
	if err != nil {
		return Result{}, &Error{Reason: ReasonTransport, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return Result{}, &Error{Reason: ReasonHTTPStatus, Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, &Error{Reason: ReasonMalformedResponse, Endpoint: endpoint, Err: err}
	}
	if decoded.Output == nil {
		return Result{}, &Error{Reason: ReasonMalformedResponse, Endpoint: endpoint, Err: fmt.Errorf("missing output")}
	}
	if decoded.Output.Text == "" {
		return Result{}, &Error{Reason: ReasonMalformedResponse, Endpoint: endpoint, Err: fmt.Errorf("missing output.text")}
	}
	return Result{Text: decoded.Output.Text, AudioURL: decoded.Output.Audio}, nil
}

// FetchAudio downloads the answer audio, bounded by the configured size.
func (o *Orchestrator) FetchAudio(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Reason: ReasonTransport, Endpoint: "audio", Err: err}
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &Error{Reason: ReasonTransport, Endpoint: "audio", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Reason: ReasonHTTPStatus, Endpoint: "audio", StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, o.opts.AudioMaxBytes+1))
	if err != nil {
		return nil, &Error{Reason: ReasonTransport, Endpoint: "audio", Err: err}
	}
	if int64(len(data)) > o.opts.AudioMaxBytes {
		return nil, &Error{Reason: ReasonMalformedResponse, Endpoint: "audio", Err: fmt.Errorf("audio exceeds %d bytes", o.opts.AudioMaxBytes)}
	}
	return data, nil
}
