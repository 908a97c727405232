package main

import (
	"context"
	"sort"
	"strings"

	"github.com/practicehub/realtime-gateway/pkg/handlers"
)

// staticCatalog is a stand-in for the platform's analysis services. It
// serves canned data so the daemon is usable end to end without the
// backing services; production deployments swap in real collaborators.
type staticCatalog struct {
	problems []handlers.Recommendation
}

func newStaticCatalog() *staticCatalog {
	return &staticCatalog{
		problems: []handlers.Recommendation{
			{ProblemID: "p-001", Title: "Two Sum", Difficulty: "easy", Score: 0.92},
			{ProblemID: "p-042", Title: "LRU Cache", Difficulty: "medium", Score: 0.81},
			{ProblemID: "p-107", Title: "Word Ladder", Difficulty: "hard", Score: 0.64},
			{ProblemID: "p-233", Title: "Merge Intervals", Difficulty: "medium", Score: 0.77},
		},
	}
}

func (c *staticCatalog) AnalyzeSkill(_ context.Context, req handlers.AnalyzeSkillRequest) (handlers.SkillReport, error) {
	return handlers.SkillReport{
		UserID: req.UserID,
		Level:  "intermediate",
		Scores: map[string]float64{
			"arrays":      0.8,
			"graphs":      0.55,
			"dynamic-pro": 0.4,
		},
	}, nil
}

func (c *staticCatalog) Recommend(_ context.Context, req handlers.RecommendationsRequest) ([]handlers.Recommendation, error) {
	limit := req.Limit
	if limit <= 0 || limit > len(c.problems) {
		limit = len(c.problems)
	}
	recs := append([]handlers.Recommendation(nil), c.problems...)
	sort.Slice(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	return recs[:limit], nil
}

func (c *staticCatalog) MatchProblems(_ context.Context, req handlers.MatchProblemsRequest) ([]handlers.ProblemMatch, error) {
	var matches []handlers.ProblemMatch
	needle := strings.ToLower(req.Description)
	for _, p := range c.problems {
		if strings.Contains(needle, strings.ToLower(p.Title)) || len(req.Tags) > 0 {
			matches = append(matches, handlers.ProblemMatch{
				ProblemID:  p.ProblemID,
				Title:      p.Title,
				Similarity: p.Score,
			})
		}
	}
	if req.Limit > 0 && len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}
	return matches, nil
}
