// Package roadmap turns a markdown roadmap into a task backlog. Phases
// become dependency tiers: every task in phase N depends on all tasks of
// phase N-1, so the pool works through the roadmap in order while tasks
// within a phase run in parallel.
package roadmap

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/aristath/agentpool/internal/store"
)

var (
	phaseRe   = regexp.MustCompile(`(?m)^## Phase (\d+): ([^(]+) \(Target: ([^)]+)\)`)
	itemRe    = regexp.MustCompile(`(?m)^- \[ \] (.+)$`)
	subItemRe = regexp.MustCompile(`(?m)^  - \[ \] (.+)$`)
)

// Phase is one roadmap section with its parsed tasks.
type Phase struct {
	Number     int
	Name       string
	TargetDate string
	Tasks      []*store.Task
}

// ParseFile reads and parses a roadmap markdown file.
func ParseFile(path string) ([]*store.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roadmap: %w", err)
	}
	return Parse(string(data))
}

// Parse extracts tasks from roadmap markdown. Top-level checklist items
// become tasks; their indented sub-items become acceptance criteria.
// Priority follows item order within the phase.
func Parse(content string) ([]*store.Task, error) {
	phases, err := parsePhases(content)
	if err != nil {
		return nil, err
	}

	var all []*store.Task
	byNumber := make(map[int][]*store.Task)
	for _, phase := range phases {
		all = append(all, phase.Tasks...)
		byNumber[phase.Number] = phase.Tasks
	}

	// Chain phases: each task depends on every task of the previous
	// phase. Phase 0 is the bootstrap tier and has no dependencies.
	numbers := make([]int, 0, len(byNumber))
	for n := range byNumber {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	for _, n := range numbers {
		if n == 0 {
			continue
		}
		prev := byNumber[n-1]
		if len(prev) == 0 {
			continue
		}
		depIDs := make([]string, len(prev))
		for i, t := range prev {
			depIDs[i] = t.ID
		}
		for _, task := range byNumber[n] {
			task.Dependencies = append(task.Dependencies, depIDs...)
		}
	}

	return all, nil
}

func parsePhases(content string) ([]*Phase, error) {
	headers := phaseRe.FindAllStringSubmatchIndex(content, -1)
	if len(headers) == 0 {
		return nil, fmt.Errorf("no phase sections found in roadmap")
	}

	var phases []*Phase
	for i, loc := range headers {
		number, err := strconv.Atoi(content[loc[2]:loc[3]])
		if err != nil {
			return nil, fmt.Errorf("invalid phase number: %w", err)
		}
		name := strings.TrimSpace(content[loc[4]:loc[5]])
		target := strings.TrimSpace(content[loc[6]:loc[7]])

		end := len(content)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		body := content[loc[1]:end]

		phase := &Phase{
			Number:     number,
			Name:       name,
			TargetDate: target,
			Tasks:      parseItems(body, fmt.Sprintf("P%d. %s", number, name)),
		}
		phases = append(phases, phase)
	}
	return phases, nil
}

func parseItems(body, phaseLabel string) []*store.Task {
	items := itemRe.FindAllStringSubmatchIndex(body, -1)

	var tasks []*store.Task
	for i, loc := range items {
		title := strings.TrimSpace(body[loc[2]:loc[3]])

		end := len(body)
		if i+1 < len(items) {
			end = items[i+1][0]
		}
		block := body[loc[0]:end]

		var criteria []string
		for _, sub := range subItemRe.FindAllStringSubmatch(block, -1) {
			criteria = append(criteria, strings.TrimSpace(sub[1]))
		}

		description := fmt.Sprintf("Implement %s.", title)
		if len(criteria) > 0 {
			description += "\n\nThis task includes the following subtasks:\n"
			for _, c := range criteria {
				description += "- " + c + "\n"
			}
		} else {
			criteria = []string{fmt.Sprintf("Implement %s successfully", title)}
		}

		tasks = append(tasks, &store.Task{
			ID:                 "task-" + uuid.NewString(),
			Title:              title,
			Description:        description,
			AcceptanceCriteria: criteria,
			Priority:           i + 1,
			Status:             store.StatusPending,
			RoadmapPhase:       phaseLabel,
		})
	}
	return tasks
}
