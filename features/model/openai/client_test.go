package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"cabline.dev/agent/features/model"
)

type stubCompletionsClient struct {
	lastParams sdk.ChatCompletionNewParams
	resp       *sdk.ChatCompletion
	err        error
}

func (s *stubCompletionsClient) New(_ context.Context, body sdk.ChatCompletionNewParams, _ ...option.RequestOption) (*sdk.ChatCompletion, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestComplete_Text(t *testing.T) {
	stub := &stubCompletionsClient{
		resp: &sdk.ChatCompletion{
			Choices: []sdk.ChatCompletionChoice{
				{
					Message:      sdk.ChatCompletionMessage{Content: "Booking summary."},
					FinishReason: "stop",
				},
			},
			Usage: sdk.CompletionUsage{
				PromptTokens:     20,
				CompletionTokens: 7,
				TotalTokens:      27,
			},
		},
	}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o-mini", MaxTokens: 256})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "You summarize taxi calls."},
			{Role: model.RoleUser, Content: "caller: hello"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "Booking summary." {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if resp.StopReason != "stop" {
		t.Fatalf("unexpected stop reason %q", resp.StopReason)
	}
	if resp.Usage.InputTokens != 20 || resp.Usage.OutputTokens != 7 || resp.Usage.TotalTokens != 27 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if got := string(stub.lastParams.Model); got != "gpt-4o-mini" {
		t.Fatalf("unexpected model %q", got)
	}
	if got := stub.lastParams.MaxCompletionTokens.Value; got != 256 {
		t.Fatalf("unexpected max tokens %d", got)
	}
	if len(stub.lastParams.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(stub.lastParams.Messages))
	}
}

func TestComplete_RateLimited(t *testing.T) {
	stub := &stubCompletionsClient{
		err: &sdk.Error{StatusCode: http.StatusTooManyRequests},
	}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	stub := &stubCompletionsClient{resp: &sdk.ChatCompletion{}}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, Options{DefaultModel: "gpt-4o-mini"}); err == nil {
		t.Fatal("expected error for nil completions client")
	}
	if _, err := New(&stubCompletionsClient{}, Options{}); err == nil {
		t.Fatal("expected error for missing default model")
	}
}
