package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Manager keeps conversation histories within a token budget.
// It holds no per-call state and is safe for concurrent use.
type Manager struct {
	estimator  TokenEstimator
	compressor Compressor
	logger     *slog.Logger
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithEstimator replaces the heuristic token estimator.
func WithEstimator(est TokenEstimator) ManagerOption {
	return func(m *Manager) {
		if est != nil {
			m.estimator = est
		}
	}
}

// WithCompressor replaces the digest compressor.
func WithCompressor(c Compressor) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.compressor = c
		}
	}
}

// WithLogger sets the logger for compression events.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager using the 4-chars-per-token heuristic and
// the digest compressor unless overridden.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		estimator:  HeuristicEstimator{CharsPerToken: DefaultCharsPerToken},
		compressor: DigestCompressor{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ManageConversationContext manages history with the default budget and window.
func ManageConversationContext(ctx context.Context, history []Message) (Result, error) {
	return NewManager().Manage(ctx, history, DefaultMaxTokens, DefaultKeepRecentPairs)
}

// Manage returns history fitted to maxTokens.
//
// A history within budget, or no longer than 2*keepRecentPairs messages,
// comes back unchanged. Otherwise the last 2*keepRecentPairs messages are
// kept verbatim and the rest is compressed into a digest that is prepended
// to the first kept message. The result always starts with a user message.
func (m *Manager) Manage(ctx context.Context, history []Message, maxTokens, keepRecentPairs int) (Result, error) {
	if maxTokens <= 0 {
		return Result{}, fmt.Errorf("%w, got %d", ErrInvalidBudget, maxTokens)
	}
	if keepRecentPairs < 1 {
		return Result{}, fmt.Errorf("%w, got %d", ErrInvalidWindow, keepRecentPairs)
	}
	if err := ValidateHistory(history); err != nil {
		return Result{}, err
	}

	originalTokens := EstimateHistory(m.estimator, history)
	stats := CompressionStats{
		OriginalMessages: len(history),
		OriginalTokens:   originalTokens,
		FinalMessages:    len(history),
		FinalTokens:      originalTokens,
	}
	unchanged := Result{Messages: slices.Clone(history), Stats: stats}

	if originalTokens <= maxTokens {
		return unchanged, nil
	}

	window := keepRecentPairs * 2
	if len(history) <= window {
		m.logger.Debug("history over budget but too short to compress",
			"component", "conversation", "messages", len(history), "tokens", originalTokens, "max_tokens", maxTokens)
		return unchanged, nil
	}

	split := splitPoint(history, len(history)-window)
	old, recent := history[:split], slices.Clone(history[split:])

	digest, err := m.compressor.Compress(ctx, old)
	if err != nil {
		m.logger.Warn("compressor failed, using digest", "component", "conversation", "error", err)
		digest = BuildDigest(old)
	}

	var managed []Message
	if recent[0].Role == RoleUser {
		recent[0].Content = attachDigest(digest, recent[0].Content)
		managed = recent
	} else {
		managed = append([]Message{UserMessage(digest)}, recent...)
	}

	stats.FinalMessages = len(managed)
	stats.FinalTokens = EstimateHistory(m.estimator, managed)
	stats.WasCompressed = true

	m.logger.Info("conversation compressed", "component", "conversation",
		"original_messages", stats.OriginalMessages, "final_messages", stats.FinalMessages,
		"original_tokens", stats.OriginalTokens, "final_tokens", stats.FinalTokens)

	return Result{Messages: managed, Stats: stats}, nil
}

// splitPoint moves the split back until the kept part starts with a user
// message, without emptying the old part. If no such point exists the
// original split is returned and the caller adds a synthetic user message.
func splitPoint(history []Message, split int) int {
	for i := split; i > 0; i-- {
		if history[i].Role == RoleUser {
			return i
		}
	}
	return split
}
