// Package agent holds the LLM-backed contestants: Rapper generates
// verses, Critic judges rounds. Both retrieve background material best
// effort; retrieval failures never fail the agent.
package agent

import (
	"context"

	"go.uber.org/zap"

	"rageraps/internal/arena"
	"rageraps/internal/config"
	"rageraps/internal/domain"
	"rageraps/internal/knowledge"
	"rageraps/internal/llm"
	"rageraps/internal/prompt"
)

// Rapper generates a contestant's verse for one round.
type Rapper struct {
	LLM          llm.Client
	Styles       map[string]config.StyleInfo
	LyricResults int
	BioResults   int
	Log          *zap.Logger
}

func (r *Rapper) Generate(ctx context.Context, req arena.GenerateRequest) (arena.GenerateResult, error) {
	snippets := r.gather(ctx, req)

	system := prompt.RapperSystem(req.Role, req.Style, r.styleDescription(req.Style))
	user := prompt.RapperUser(req.Role, req.Opponent, req.RoundNumber, req.Transcript, snippets)

	content, err := r.LLM.Complete(ctx, system, user)
	if err != nil {
		return arena.GenerateResult{}, err
	}
	return arena.GenerateResult{Content: content, Snippets: snippets}, nil
}

// gather fetches the round's context: the contestant's own lyrics, plus
// biographies of both contestants in the opening round. Failed lookups
// are logged and skipped.
func (r *Rapper) gather(ctx context.Context, req arena.GenerateRequest) []domain.Snippet {
	var snippets []domain.Snippet

	lyrics, err := req.Knowledge.Retrieve(ctx, req.Role, req.Style, knowledge.KindLyric, r.LyricResults)
	if err != nil {
		r.Log.Debug("lyric retrieval failed", zap.String("entity", req.Role), zap.Error(err))
	} else {
		snippets = append(snippets, lyrics...)
	}

	if req.RoundNumber == 1 {
		for _, name := range []string{req.Role, req.Opponent} {
			bios, err := req.Knowledge.Retrieve(ctx, name, "", knowledge.KindBio, r.BioResults)
			if err != nil {
				r.Log.Debug("bio retrieval failed", zap.String("entity", name), zap.Error(err))
				continue
			}
			snippets = append(snippets, bios...)
		}
	}
	return snippets
}

func (r *Rapper) styleDescription(style string) string {
	if info, ok := r.Styles[style]; ok {
		return info.Description
	}
	return ""
}

// Critic judges one round from both verses.
type Critic struct {
	LLM        llm.Client
	BioResults int
	Log        *zap.Logger
}

func (c *Critic) Evaluate(ctx context.Context, req arena.EvaluateRequest) (arena.EvaluateResult, error) {
	var snippets []domain.Snippet
	for _, name := range []string{req.Verse1.Contestant, req.Verse2.Contestant} {
		bios, err := req.Knowledge.Retrieve(ctx, name, "", knowledge.KindBio, c.BioResults)
		if err != nil {
			c.Log.Debug("judge retrieval failed", zap.String("entity", name), zap.Error(err))
			continue
		}
		snippets = append(snippets, bios...)
	}

	verdict, err := c.LLM.Complete(ctx, prompt.JudgeSystem(), prompt.JudgeUser(req.Verse1, req.Verse2, req.Style1, req.Style2, snippets))
	if err != nil {
		return arena.EvaluateResult{}, err
	}
	return arena.EvaluateResult{VerdictText: verdict, Snippets: snippets}, nil
}
