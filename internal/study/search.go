package study

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"

	"github.com/conorfennell/flashstudy/internal/domain"
)

type rankedTopic struct {
	topic    domain.Topic
	distance int
}

// SearchTopics finds topics whose name or id contains query, plus topics
// whose name fuzzily matches it. Closer matches come first. An empty query
// matches nothing.
func (s *Service) SearchTopics(ctx context.Context, query string) ([]domain.Topic, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Topic{}, nil
	}

	exact, err := s.db.SearchTopics(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search topics: %w", err)
	}
	all, err := s.db.GetAllTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load topics: %w", err)
	}

	var ranked []rankedTopic
	for _, t := range exact {
		// Substring hits on the id may not match the name at all.
		d := fuzzy.RankMatchNormalizedFold(query, t.Name)
		if d < 0 {
			d = 0
		}
		ranked = append(ranked, rankedTopic{topic: t, distance: d})
	}
	for _, t := range all {
		if d := fuzzy.RankMatchNormalizedFold(query, t.Name); d >= 0 {
			ranked = append(ranked, rankedTopic{topic: t, distance: d})
		}
	}

	ranked = lo.UniqBy(ranked, func(r rankedTopic) string { return r.topic.ID })
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].distance != ranked[j].distance {
			return ranked[i].distance < ranked[j].distance
		}
		return ranked[i].topic.Name < ranked[j].topic.Name
	})
	return lo.Map(ranked, func(r rankedTopic, _ int) domain.Topic { return r.topic }), nil
}
