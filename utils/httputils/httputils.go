// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

// Package httputils builds the outbound HTTP clients used to reach
// external data providers.
package httputils

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ClientOptions configures NewClient.
type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
	// Trace, when set, receives a dump of every request and response.
	Trace    io.Writer
	DumpBody bool
	// Logger, when set, records one line per round trip.
	Logger *zap.Logger
}

// NewClient returns an http.Client with the configured header, tracing and
// logging round trippers layered over http.DefaultTransport.
func NewClient(opts ClientOptions) *http.Client {
	var rt http.RoundTripper = http.DefaultTransport

	if opts.Trace != nil {
		rt = &TraceRoundTripper{Transport: rt, Writer: opts.Trace, DumpBody: opts.DumpBody}
	}

	if opts.Logger != nil {
		rt = &ZapRoundTripper{Transport: rt, Logger: opts.Logger}
	}

	if opts.UserAgent != "" {
		rt = &HeaderRoundTripper{Transport: rt, Headers: map[string]string{"User-Agent": opts.UserAgent}}
	}

	return &http.Client{Transport: rt, Timeout: opts.Timeout}
}

// TraceRoundTripper dumps each exchange to Writer.
type TraceRoundTripper struct {
	Transport http.RoundTripper
	Writer    io.Writer
	DumpBody  bool
}

// abbreviate prefixes each line and trims long dumps.
func abbreviate(lines []string, prefix rune) []string {
	const maxLines, maxChars = 256, 512

	if len(lines) > maxLines {
		lines = append(lines[:maxLines], "…")
	}

	for i, line := range lines {
		line = fmt.Sprintf("%c %s", prefix, line)
		if len(line) > maxChars {
			line = line[:maxChars] + "…"
		}

		lines[i] = line
	}

	return lines
}

func (t *TraceRoundTripper) write(dump []byte, prefix rune) error {
	lines := abbreviate(strings.Split(string(dump), "\n"), prefix)
	lines = append(lines, "")
	_, err := fmt.Fprint(t.Writer, strings.Join(lines, "\n"))

	return err
}

// RoundTrip implements the http.RoundTripper interface.
func (t *TraceRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Writer == nil {
		return t.Transport.RoundTrip(req)
	}

	dump, err := httputil.DumpRequestOut(req, t.DumpBody)
	if err != nil {
		return nil, fmt.Errorf("tracing HTTP request: %w", err)
	}

	if err := t.write(dump, '>'); err != nil {
		return nil, err
	}

	start := time.Now()

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	dump, err = httputil.DumpResponse(resp, t.DumpBody)
	if err != nil {
		return nil, fmt.Errorf("tracing HTTP response: %w", err)
	}

	if _, err := fmt.Fprintf(t.Writer, "< RESPONSE: [%v]\n", time.Since(start)); err != nil {
		return nil, err
	}

	if err := t.write(dump, '<'); err != nil {
		return nil, err
	}

	return resp, nil
}

// ZapRoundTripper logs method, URL, status and latency of each exchange.
type ZapRoundTripper struct {
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// RoundTrip implements the http.RoundTripper interface.
func (t *ZapRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Transport.RoundTrip(req)

	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Duration("latency", time.Since(start)),
	}

	if err != nil {
		t.Logger.Warn("outbound request failed", append(fields, zap.Error(err))...)

		return nil, err
	}

	t.Logger.Debug("outbound request", append(fields, zap.Int("status", resp.StatusCode))...)

	return resp, nil
}

// HeaderRoundTripper sets fixed headers on every request.
type HeaderRoundTripper struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

// RoundTrip implements the http.RoundTripper interface.
func (t *HeaderRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	return t.Transport.RoundTrip(req)
}
