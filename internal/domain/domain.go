package domain

// Battle statuses.
const (
	BattleInProgress = "in_progress"
	BattleCompleted  = "completed"
)

// Round statuses. A round stays in_progress until both verses exist and
// exactly one judgment is attached.
const (
	RoundInProgress = "in_progress"
	RoundCompleted  = "completed"
)

// Judgment sources.
const (
	JudgmentSourceAI     = "ai"
	JudgmentSourceManual = "manual"
)

type Battle struct {
	ID          string  `json:"id"`
	Contestant1 string  `json:"contestant1"`
	Contestant2 string  `json:"contestant2"`
	Style1      string  `json:"style1"`
	Style2      string  `json:"style2"`
	RoundCount  int     `json:"round_count"`
	Rounds      []Round `json:"rounds,omitempty"`
	Status      string  `json:"status" enum:"in_progress,completed"`
	Wins1       int     `json:"wins1"`
	Wins2       int     `json:"wins2"`
	Winner      string  `json:"winner,omitempty"`
	Draw        bool    `json:"draw,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// ContestantOf reports whether name is one of the battle's contestants.
func (b Battle) ContestantOf(name string) bool {
	return name == b.Contestant1 || name == b.Contestant2
}

// StyleFor returns the style tag registered for the named contestant.
func (b Battle) StyleFor(name string) string {
	if name == b.Contestant2 {
		return b.Style2
	}
	return b.Style1
}

// Transcript returns all verses of rounds strictly before roundNumber in
// presentation order: ascending round, contestant-1 slot before
// contestant-2 slot. The result is a fresh slice, safe to hand to
// concurrently running producer tasks.
func (b Battle) Transcript(roundNumber int) []Verse {
	var out []Verse
	for _, r := range b.Rounds {
		if r.RoundNumber >= roundNumber {
			continue
		}
		if r.Verse1 != nil {
			out = append(out, *r.Verse1)
		}
		if r.Verse2 != nil {
			out = append(out, *r.Verse2)
		}
	}
	return out
}

type Round struct {
	ID          string    `json:"id"`
	BattleID    string    `json:"battle_id"`
	RoundNumber int       `json:"round_number"`
	Verse1      *Verse    `json:"verse1,omitempty"`
	Verse2      *Verse    `json:"verse2,omitempty"`
	Judgment    *Judgment `json:"judgment,omitempty"`
	Status      string    `json:"status" enum:"in_progress,completed"`
	CreatedAt   string    `json:"created_at" format:"date-time"`
	UpdatedAt   string    `json:"updated_at" format:"date-time"`
}

type Verse struct {
	ID         string `json:"id"`
	RoundID    string `json:"round_id"`
	Contestant string `json:"contestant"`
	Content    string `json:"content"`
	// Error carries the generation error marker when this is a fallback
	// verse; empty for real content.
	Error    string    `json:"error,omitempty"`
	Snippets []Snippet `json:"snippets,omitempty"`
}

// Fallback reports whether the verse is placeholder content produced
// after a generation failure.
func (v Verse) Fallback() bool {
	return v.Error != ""
}

type Judgment struct {
	ID       string `json:"id"`
	RoundID  string `json:"round_id"`
	Winner   string `json:"winner"`
	Feedback string `json:"feedback,omitempty"`
	// Sections extracted from the raw verdict text.
	Analysis1  string    `json:"analysis1,omitempty"`
	Analysis2  string    `json:"analysis2,omitempty"`
	Comparison string    `json:"comparison,omitempty"`
	Source     string    `json:"source" enum:"ai,manual"`
	Snippets   []Snippet `json:"snippets,omitempty"`
	CreatedAt  string    `json:"created_at" format:"date-time"`
}

// Snippet is a piece of retrieval context consulted while generating a
// verse or judging a round. It has no lifecycle of its own; it is owned
// by the verse or judgment that fetched it.
type Snippet struct {
	Entity  string `json:"entity"`
	Style   string `json:"style,omitempty"`
	Content string `json:"content"`
}
