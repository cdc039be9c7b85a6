package server

import (
	"rageraps/internal/domain"
	"rageraps/internal/repo"
)

type CreateBattleRequest struct {
	Contestant1 string `json:"contestant1" example:"Alice"`
	Contestant2 string `json:"contestant2" example:"Bob"`
	Style1      string `json:"style1,omitempty" example:"trap"`
	Style2      string `json:"style2,omitempty" example:"old-school"`
	Rounds      int    `json:"rounds,omitempty" minimum:"0" example:"3"`
}

type ManualJudgmentRequest struct {
	Winner   string `json:"winner" example:"Alice"`
	Feedback string `json:"feedback,omitempty"`
}

type BattleListResponse struct {
	Battles []domain.Battle `json:"battles"`
}

type EventListResponse struct {
	Events []repo.Event `json:"events"`
}

type SnippetListResponse struct {
	Snippets []domain.Snippet `json:"snippets"`
}

type ImportResponse struct {
	Imported int `json:"imported"`
}
