// Package summary builds dispatcher-facing post-call summaries.
//
// The summarizer reads a finished call's log back from the calllog store,
// renders it into a plain-text transcript and asks a chat model for a short
// summary the dispatch desk can scan. It owns no storage of its own: callers
// decide where the returned summary text goes.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cabline.dev/agent/features/calllog"
	"cabline.dev/agent/features/model"
)

type (
	// Summarizer renders call logs into transcripts and asks the model for
	// dispatcher-facing summaries.
	Summarizer struct {
		store     calllog.Store
		client    model.Client
		model     string
		maxTokens int
		pageSize  int
		system    string
	}

	// Options configure a Summarizer.
	Options struct {
		// Store is the call log store entries are read from. Required.
		Store calllog.Store

		// Client is the model client used to generate summaries. Required.
		Client model.Client

		// Model overrides the client's default model identifier.
		Model string

		// MaxTokens caps the summary length. Defaults to 512.
		MaxTokens int

		// PageSize is the number of log entries fetched per List call.
		// Defaults to 200.
		PageSize int

		// SystemPrompt replaces the built-in dispatcher brief.
		SystemPrompt string
	}

	// Summary is a model-generated account of one call.
	Summary struct {
		// CallID identifies the summarized call.
		CallID string
		// Text is the dispatcher-facing summary.
		Text string
		// Usage reports the model token usage for the invocation.
		Usage model.TokenUsage
	}
)

const (
	defaultMaxTokens = 512
	defaultPageSize  = 200
)

// systemPrompt is the standing brief for the summary model. Summaries land
// on the dispatch screen unedited, so the brief insists on brevity and
// forbids inventing details the log does not contain.
const systemPrompt = `You write call summaries for a taxi dispatch office.
You are given the event log of a finished phone call between an automated
booking agent and a caller. Write a summary a dispatcher can scan in a few
seconds.

Rules:
- Lead with the outcome: booked, amended, declined, transferred or abandoned.
- For bookings include the reference, pickup, destination, passenger count
  and pickup time.
- Note anything a human should follow up, such as transfers or failed
  address lookups.
- Use only facts present in the log. Never invent details.
- Plain text, at most five sentences.`

// New constructs a Summarizer from opts.
func New(opts Options) (*Summarizer, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Client == nil {
		return nil, errors.New("model client is required")
	}
	s := &Summarizer{
		store:     opts.Store,
		client:    opts.Client,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		pageSize:  opts.PageSize,
		system:    opts.SystemPrompt,
	}
	if s.maxTokens <= 0 {
		s.maxTokens = defaultMaxTokens
	}
	if s.pageSize <= 0 {
		s.pageSize = defaultPageSize
	}
	if s.system == "" {
		s.system = systemPrompt
	}
	return s, nil
}

// Summarize reads the full log for callID, renders it into a transcript and
// asks the model for a summary. Calls with no log entries are an error: a
// summary of nothing would be an invitation to hallucinate.
func (s *Summarizer) Summarize(ctx context.Context, callID string) (*Summary, error) {
	if callID == "" {
		return nil, errors.New("call id is required")
	}
	entries, err := s.listAll(ctx, callID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("call %s has no log entries", callID)
	}
	transcript, err := renderTranscript(entries)
	if err != nil {
		return nil, fmt.Errorf("render call %s transcript: %w", callID, err)
	}
	resp, err := s.client.Complete(ctx, model.Request{
		Model: s.model,
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: s.system},
			{Role: model.RoleUser, Content: "Call log (oldest first):\n\n" + transcript},
		},
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize call %s: %w", callID, err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, fmt.Errorf("summarize call %s: model returned no text", callID)
	}
	return &Summary{CallID: callID, Text: text, Usage: resp.Usage}, nil
}

// listAll pages through the store until the cursor runs out.
func (s *Summarizer) listAll(ctx context.Context, callID string) ([]*calllog.Entry, error) {
	var (
		entries []*calllog.Entry
		cursor  string
	)
	for {
		page, err := s.store.List(ctx, callID, cursor, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("list call %s entries: %w", callID, err)
		}
		entries = append(entries, page.Entries...)
		if page.NextCursor == "" {
			return entries, nil
		}
		cursor = page.NextCursor
	}
}
