package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"care-call-scheduler/internal/calls"
)

// Service runs the live-call conversation: it asks the Generator for each
// assistant turn, keeps the running history in the cache, and appends every
// turn to the call's transcript.
type Service struct {
	store calls.Store
	gen   Generator
	cache HistoryCache
	log   *slog.Logger
}

func NewService(store calls.Store, gen Generator, cache HistoryCache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, gen: gen, cache: cache, log: log}
}

// Open returns the opening line for a freshly answered call.
func (s *Service) Open(ctx context.Context, callID, handle string) (string, error) {
	callID, err := s.resolve(ctx, callID, handle)
	if err != nil {
		return "", err
	}
	history := s.history(ctx, callID, handle)
	text, err := s.gen.Continue(ctx, history, "")
	if err != nil {
		return "", fmt.Errorf("generate greeting: %w", err)
	}
	s.record(ctx, callID, handle, calls.TranscriptTurn{Role: calls.RoleAssistant, Text: text})
	return text, nil
}

// Respond records the recipient's utterance and returns the assistant reply.
func (s *Service) Respond(ctx context.Context, callID, handle, utterance string) (string, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return "", fmt.Errorf("%w: empty utterance", calls.ErrValidation)
	}
	callID, err := s.resolve(ctx, callID, handle)
	if err != nil {
		return "", err
	}
	history := s.history(ctx, callID, handle)
	text, err := s.gen.Continue(ctx, history, utterance)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	s.record(ctx, callID, handle,
		calls.TranscriptTurn{Role: calls.RoleUser, Text: utterance},
		calls.TranscriptTurn{Role: calls.RoleAssistant, Text: text},
	)
	return text, nil
}

func (s *Service) resolve(ctx context.Context, callID, handle string) (string, error) {
	if callID != "" {
		return callID, nil
	}
	c, err := s.store.FindByProviderHandle(ctx, handle)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// history prefers the cache and falls back to the stored transcript after
// a cache miss, e.g. following a restart mid-call.
func (s *Service) history(ctx context.Context, callID, handle string) []calls.TranscriptTurn {
	turns, err := s.cache.Load(ctx, handle)
	if err != nil {
		s.log.Warn("conversation cache load failed", "handle", handle, "err", err)
	}
	if len(turns) > 0 {
		return turns
	}
	c, err := s.store.FindByID(ctx, callID)
	if err != nil {
		return nil
	}
	return c.Transcript
}

func (s *Service) record(ctx context.Context, callID, handle string, turns ...calls.TranscriptTurn) {
	if err := s.cache.Append(ctx, handle, turns...); err != nil {
		s.log.Warn("conversation cache append failed", "handle", handle, "err", err)
	}
	_, err := s.store.Update(ctx, callID, func(c *calls.ScheduledCall) error {
		c.Transcript = append(c.Transcript, turns...)
		return nil
	})
	if err != nil {
		s.log.Error("transcript append failed", "call_id", callID, "err", err)
	}
}

// Finish releases cached history for every attempt of c and, for completed
// calls, stores a summary of the transcript once.
func (s *Service) Finish(ctx context.Context, c calls.ScheduledCall) {
	for _, a := range c.Attempts {
		if err := s.cache.Evict(ctx, a.ProviderCallHandle); err != nil {
			s.log.Warn("conversation cache evict failed", "handle", a.ProviderCallHandle, "err", err)
		}
	}
	if c.Status != calls.StatusCompleted || c.AISummary != "" || len(c.Transcript) == 0 {
		return
	}

	summary, err := s.gen.Summarize(ctx, c.Transcript)
	if err != nil {
		s.log.Error("summarize failed", "call_id", c.ID, "err", err)
		return
	}
	_, err = s.store.Update(ctx, c.ID, func(cur *calls.ScheduledCall) error {
		if cur.AISummary != "" {
			return calls.ErrUnchanged
		}
		cur.AISummary = summary
		return nil
	})
	if err != nil && !errors.Is(err, calls.ErrNotFound) {
		s.log.Error("summary update failed", "call_id", c.ID, "err", err)
	}
}
