package roadmap

import (
	"regexp"
	"strings"

	"github.com/aristath/agentpool/internal/store"
)

// Assign distributes tasks across the roster by matching each agent's
// specialization keywords against the task's title and description. The
// best-scoring agent wins; tasks nobody matches fall to the fallback
// agent, or round-robin across the roster when no fallback is named.
func Assign(tasks []*store.Task, agents []*store.Agent, fallbackID string) {
	type scored struct {
		id string
		re []*regexp.Regexp
	}

	matchers := make([]scored, 0, len(agents))
	for _, agent := range agents {
		var res []*regexp.Regexp
		for _, spec := range agent.Specializations {
			res = append(res, regexp.MustCompile(`\b`+regexp.QuoteMeta(strings.ToLower(spec))+`\b`))
		}
		matchers = append(matchers, scored{id: agent.ID, re: res})
	}

	rr := 0
	for _, task := range tasks {
		if task.AssignedAgentID != "" {
			continue
		}
		text := strings.ToLower(task.Title + " " + task.Description)

		best, bestScore := "", 0
		for _, m := range matchers {
			score := 0
			for _, re := range m.re {
				score += len(re.FindAllString(text, -1))
			}
			if score > bestScore {
				best, bestScore = m.id, score
			}
		}

		switch {
		case bestScore > 0:
			task.AssignedAgentID = best
		case fallbackID != "":
			task.AssignedAgentID = fallbackID
		case len(agents) > 0:
			task.AssignedAgentID = agents[rr%len(agents)].ID
			rr++
		}
	}
}
