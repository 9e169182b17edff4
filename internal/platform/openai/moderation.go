package openai

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// moderationChunkRunes keeps each moderation input well under the model's
// context while splitting on whitespace only.
const moderationChunkRunes = 8000

type moderationRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type moderationResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Results []struct {
		Flagged        bool               `json:"flagged"`
		Categories     map[string]bool    `json:"categories"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// Moderation merges the per-input results: flagged if any input is, and the
// maximum score per category.
type Moderation struct {
	Flagged        bool
	CategoryScores map[string]float64
	Categories     []string
}

func (c *client) Moderate(ctx context.Context, inputs []string) (*Moderation, error) {
	chunks := make([]string, 0, len(inputs))
	for _, in := range inputs {
		chunks = append(chunks, ChunkText(in, moderationChunkRunes)...)
	}
	out := &Moderation{CategoryScores: map[string]float64{}}
	if len(chunks) == 0 {
		return out, nil
	}

	var resp moderationResponse
	if err := c.doJSON(ctx, "/v1/moderations", moderationRequest{Model: c.moderationModel, Input: chunks}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(chunks) {
		return nil, fmt.Errorf("moderation returned %d results for %d inputs", len(resp.Results), len(chunks))
	}

	seen := map[string]bool{}
	for _, r := range resp.Results {
		out.Flagged = out.Flagged || r.Flagged
		for k, v := range r.CategoryScores {
			if cur, ok := out.CategoryScores[k]; !ok || v > cur {
				out.CategoryScores[k] = v
			}
		}
		for k, on := range r.Categories {
			if on && !seen[k] {
				seen[k] = true
				out.Categories = append(out.Categories, k)
			}
		}
	}
	sort.Strings(out.Categories)
	return out, nil
}

// ChunkText splits s on whitespace into pieces of at most limit runes. A
// single word longer than limit becomes its own piece.
func ChunkText(s string, limit int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	if limit <= 0 {
		return []string{strings.Join(words, " ")}
	}
	var (
		out []string
		cur strings.Builder
		n   int
	)
	for _, w := range words {
		wl := len([]rune(w))
		if n > 0 && n+1+wl > limit {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(w)
		n += wl
	}
	if n > 0 {
		out = append(out, cur.String())
	}
	return out
}
