package arena

import (
	"context"

	"go.uber.org/zap"

	"rageraps/internal/domain"
)

// FallbackContent is the placeholder verse stored when generation fails.
// It is a fixed string so fallback verses are recognizable in transcripts.
const FallbackContent = "Lost my voice mid-flow, the booth went dark tonight.\nHold the scorecards down, I'll be back to set it right."

// produce runs one generation under the producer timeout. It never
// returns an error: on failure or timeout the verse carries
// FallbackContent and an error marker instead of snippets. The result
// channel is buffered so a generation that finishes after the deadline
// is discarded without touching the returned verse.
func (o *Orchestrator) produce(ctx context.Context, req GenerateRequest) domain.Verse {
	ctx, cancel := context.WithTimeout(ctx, o.ProducerTimeout)
	defer cancel()

	type outcome struct {
		res GenerateResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := o.Generator.Generate(ctx, req)
		ch <- outcome{res: res, err: err}
	}()

	var err error
	select {
	case out := <-ch:
		if out.err == nil {
			return domain.Verse{Contestant: req.Role, Content: out.res.Content, Snippets: out.res.Snippets}
		}
		err = out.err
	case <-ctx.Done():
		err = ctx.Err()
	}

	o.Log.Warn("verse generation failed, using fallback",
		zap.String("contestant", req.Role),
		zap.Int("round", req.RoundNumber),
		zap.Error(err))
	return domain.Verse{Contestant: req.Role, Content: FallbackContent, Error: "generation failed: " + err.Error()}
}
