// Package interlink groups an organization's posts into topic clusters and
// scores internal link opportunities between them.
package interlink

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultTopics        = 5
	DefaultOpportunities = 10

	RelevanceHigh   = "high"
	RelevanceMedium = "medium"
	RelevanceLow    = "low"
)

type Page struct {
	ID        string
	Title     string
	URL       string
	Status    string
	Keywords  []string
	Content   string
	ClusterID string
}

type Topic struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

type Cluster struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	PillarID   string   `json:"pillarId"`
	TopicTerms []string `json:"topicTerms"`
	PageIDs    []string `json:"pageIds"`
	Coherence  float64  `json:"coherence"`
}

type Analysis struct {
	Clusters    []Cluster `json:"clusters"`
	Unclustered []string  `json:"unclustered"`
}

type Opportunity struct {
	TargetID       string   `json:"targetId"`
	TargetTitle    string   `json:"targetTitle"`
	TargetURL      string   `json:"targetUrl"`
	AnchorText     string   `json:"anchorText"`
	Score          int      `json:"score"`
	Relevance      string   `json:"relevance"`
	SharedKeywords []string `json:"sharedKeywords"`
	SameCluster    bool     `json:"sameCluster"`
}

var stopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`about above after again against all also and any are because been before
		being below between both but can could did does doing down during each few for from further had has
		have having her here hers herself him himself his how into its itself just more most myself nor not
		now off once only other our ours ourselves out over own same she should some such than that the their
		theirs them themselves then there these they this those through too under until very was were what
		when where which while who whom why will with would you your yours yourself yourselves`) {
		stopwords[w] = true
	}
}

// Tokenize lowercases text, splits it on anything that is not a letter or a
// digit, and drops stopwords and tokens shorter than three runes.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, field := range fields {
		if utf8.RuneCountInString(field) < 3 || stopwords[field] {
			continue
		}
		tokens = append(tokens, field)
	}
	return tokens
}

func rankTopics(weights map[string]float64, n int) []Topic {
	topics := make([]Topic, 0, len(weights))
	for term, weight := range weights {
		topics = append(topics, Topic{Term: term, Weight: weight})
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Weight != topics[j].Weight {
			return topics[i].Weight > topics[j].Weight
		}
		return topics[i].Term < topics[j].Term
	})
	if len(topics) > n {
		topics = topics[:n]
	}
	return topics
}

// ExtractTopics weights title terms x3, keyword terms x2 and content terms x1.
func ExtractTopics(page Page, n int) []Topic {
	if n <= 0 {
		n = DefaultTopics
	}
	weights := make(map[string]float64)
	for _, token := range Tokenize(page.Title) {
		weights[token] += 3
	}
	for _, token := range Tokenize(strings.Join(page.Keywords, " ")) {
		weights[token] += 2
	}
	for _, token := range Tokenize(page.Content) {
		weights[token]++
	}
	return rankTopics(weights, n)
}

func terms(topics []Topic) []string {
	out := make([]string, len(topics))
	for i, topic := range topics {
		out[i] = topic.Term
	}
	return out
}

// AnalyzeClusters groups pages by their primary topic. Pages whose primary
// topic is not shared with another page are returned as unclustered.
func AnalyzeClusters(pages []Page) Analysis {
	topicsByPage := make(map[string][]Topic, len(pages))
	groups := make(map[string][]Page)
	var unclustered []string

	for _, page := range pages {
		topics := ExtractTopics(page, DefaultTopics)
		topicsByPage[page.ID] = topics
		if len(topics) == 0 {
			unclustered = append(unclustered, page.ID)
			continue
		}
		primary := topics[0].Term
		groups[primary] = append(groups[primary], page)
	}

	clusters := make([]Cluster, 0, len(groups))
	for name, members := range groups {
		if len(members) < 2 {
			unclustered = append(unclustered, members[0].ID)
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

		summed := make(map[string]float64)
		pillar := members[0]
		pillarWords := len(strings.Fields(pillar.Content))
		ids := make([]string, len(members))
		for i, member := range members {
			ids[i] = member.ID
			for _, topic := range topicsByPage[member.ID] {
				summed[topic.Term] += topic.Weight
			}
			if words := len(strings.Fields(member.Content)); words > pillarWords {
				pillar, pillarWords = member, words
			}
		}

		clusterTerms := terms(rankTopics(summed, DefaultTopics))
		inCluster := make(map[string]bool, len(clusterTerms))
		for _, term := range clusterTerms {
			inCluster[term] = true
		}
		var overlap float64
		for _, member := range members {
			shared := 0
			for _, topic := range topicsByPage[member.ID] {
				if inCluster[topic.Term] {
					shared++
				}
			}
			overlap += float64(shared) / DefaultTopics
		}
		coherence := math.Round(overlap/float64(len(members))*100) / 100

		clusters = append(clusters, Cluster{
			ID:         name,
			Name:       name,
			PillarID:   pillar.ID,
			TopicTerms: clusterTerms,
			PageIDs:    ids,
			Coherence:  coherence,
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		if len(clusters[i].PageIDs) != len(clusters[j].PageIDs) {
			return len(clusters[i].PageIDs) > len(clusters[j].PageIDs)
		}
		return clusters[i].Name < clusters[j].Name
	})
	sort.Strings(unclustered)
	if unclustered == nil {
		unclustered = []string{}
	}
	return Analysis{Clusters: clusters, Unclustered: unclustered}
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		if v := strings.ToLower(strings.TrimSpace(value)); v != "" {
			set[v] = true
		}
	}
	return set
}

func clusterOf(page Page, clusters []Cluster) *Cluster {
	for i := range clusters {
		if page.ClusterID != "" && clusters[i].ID == page.ClusterID {
			return &clusters[i]
		}
		for _, id := range clusters[i].PageIDs {
			if id == page.ID {
				return &clusters[i]
			}
		}
	}
	return nil
}

func relevance(score int) string {
	switch {
	case score >= 30:
		return RelevanceHigh
	case score >= 15:
		return RelevanceMedium
	default:
		return RelevanceLow
	}
}

// FindOpportunities scores every linkable candidate against source. existing
// holds target IDs the source already links to.
func FindOpportunities(source Page, candidates []Page, clusters []Cluster, existing map[string]bool, limit int) []Opportunity {
	if limit <= 0 {
		limit = DefaultOpportunities
	}
	sourceCluster := clusterOf(source, clusters)
	titleTokens := lowerSet(Tokenize(source.Title))
	content := strings.ToLower(source.Content)

	opportunities := []Opportunity{}
	for _, target := range candidates {
		if target.ID == source.ID || existing[target.ID] {
			continue
		}
		if target.URL == "" && target.Status != "published" {
			continue
		}

		targetKeywords := lowerSet(target.Keywords)
		var shared []string
		seen := make(map[string]bool)
		for _, keyword := range source.Keywords {
			k := strings.ToLower(strings.TrimSpace(keyword))
			if targetKeywords[k] && !seen[k] {
				seen[k] = true
				shared = append(shared, k)
			}
		}

		score := 10 * len(shared)
		for token := range lowerSet(Tokenize(target.Title)) {
			if titleTokens[token] {
				score += 5
			}
		}
		sameCluster := false
		if sourceCluster != nil {
			if targetCluster := clusterOf(target, clusters); targetCluster != nil && targetCluster.ID == sourceCluster.ID {
				sameCluster = true
				score += 15
				if sourceCluster.PillarID == target.ID {
					score += 10
				}
			}
		}
		if score <= 0 {
			continue
		}

		anchor := target.Title
		for _, keyword := range shared {
			if strings.Contains(content, keyword) {
				anchor = keyword
				break
			}
		}
		if shared == nil {
			shared = []string{}
		}

		opportunities = append(opportunities, Opportunity{
			TargetID:       target.ID,
			TargetTitle:    target.Title,
			TargetURL:      target.URL,
			AnchorText:     anchor,
			Score:          score,
			Relevance:      relevance(score),
			SharedKeywords: shared,
			SameCluster:    sameCluster,
		})
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		if opportunities[i].Score != opportunities[j].Score {
			return opportunities[i].Score > opportunities[j].Score
		}
		return opportunities[i].TargetTitle < opportunities[j].TargetTitle
	})
	if len(opportunities) > limit {
		opportunities = opportunities[:limit]
	}
	return opportunities
}
