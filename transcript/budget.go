package transcript

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sammcj/agentloop/types"
)

const (
	charsPerTokenEstimate = 4

	// perMessageOverhead approximates the role and separator tokens chat
	// templates add around every turn.
	perMessageOverhead = 4
)

// TokenCounter estimates how many tokens a piece of text costs.
type TokenCounter interface {
	Count(text string) int
}

// CharCounter estimates tokens from the character count.
type CharCounter struct{}

func (CharCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerTokenEstimate - 1) / charsPerTokenEstimate
}

// TiktokenCounter counts tokens with a BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding, e.g. "cl100k_base". Loading
// may fetch the vocabulary on first use.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Budget caps the size of the transcript sent to the model.
type Budget struct {
	MaxTokens int
	Counter   TokenCounter
}

// Enabled reports whether the budget limits anything.
func (b Budget) Enabled() bool {
	return b.MaxTokens > 0
}

// Fit drops the oldest turns after the system turn until msgs fits within the
// budget. The system turn and the final turn are never dropped, so the result
// can still exceed the budget when those two alone are too large. It returns
// the kept turns and how many were dropped.
func (b Budget) Fit(msgs []types.Message) ([]types.Message, int) {
	if !b.Enabled() || len(msgs) <= 2 {
		return msgs, 0
	}
	counter := b.Counter
	if counter == nil {
		counter = CharCounter{}
	}

	costs := make([]int, len(msgs))
	total := 0
	for i, msg := range msgs {
		costs[i] = counter.Count(msg.Content) + perMessageOverhead
		total += costs[i]
	}

	dropped := 0
	last := len(msgs) - 1
	for total > b.MaxTokens && 1+dropped < last {
		total -= costs[1+dropped]
		dropped++
	}
	if dropped == 0 {
		return msgs, 0
	}

	out := make([]types.Message, 0, len(msgs)-dropped)
	out = append(out, msgs[0])
	out = append(out, msgs[1+dropped:]...)
	return out, dropped
}
