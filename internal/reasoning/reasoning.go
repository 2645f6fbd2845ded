// Package reasoning implements chain-of-thought task decomposition on top
// of a model provider: understand the problem, split it into sub-problems,
// solve each one, then synthesize a final answer.
package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ksofianos/cadre/internal/llm"
)

type Step struct {
	Number int    `json:"step"`
	Type   string `json:"type"` // understanding, decomposition, solution, synthesis
	Output string `json:"output"`
}

// Trace is the outcome of one reasoning pass. Confidence is in [0,1].
type Trace struct {
	Steps         []Step  `json:"steps"`
	Confidence    float64 `json:"confidence"`
	RequiresTools bool    `json:"requires_tools"`
}

// FinalAnswer returns the synthesis step's output, or an empty string when
// no steps were produced.
func (t *Trace) FinalAnswer() string {
	if len(t.Steps) == 0 {
		return ""
	}
	return t.Steps[len(t.Steps)-1].Output
}

// Reasoner runs the chain-of-thought loop. A nil provider degrades to
// canned step outputs, which keeps agents functional in offline setups
// and tests.
type Reasoner struct {
	provider llm.Provider
}

func New(provider llm.Provider) *Reasoner {
	return &Reasoner{provider: provider}
}

// Reason decomposes the prompt. maxIterations caps how many sub-problems
// are solved individually.
func (r *Reasoner) Reason(ctx context.Context, prompt string, maxIterations int) (*Trace, error) {
	slog.Debug("starting chain-of-thought reasoning")

	var steps []Step

	understanding, err := r.understand(ctx, prompt)
	if err != nil {
		return nil, err
	}
	steps = append(steps, Step{Number: 1, Type: "understanding", Output: understanding})

	subProblems, err := r.decompose(ctx, prompt, understanding)
	if err != nil {
		return nil, err
	}
	steps = append(steps, Step{Number: 2, Type: "decomposition", Output: strings.Join(subProblems, "\n")})

	if maxIterations > 0 && len(subProblems) > maxIterations {
		subProblems = subProblems[:maxIterations]
	}

	var solutions []string
	for i, sub := range subProblems {
		solution, err := r.solve(ctx, sub)
		if err != nil {
			return nil, err
		}
		solutions = append(solutions, solution)
		steps = append(steps, Step{Number: 3 + i, Type: "solution", Output: solution})
	}

	answer, err := r.synthesize(ctx, prompt, solutions)
	if err != nil {
		return nil, err
	}
	steps = append(steps, Step{Number: len(steps) + 1, Type: "synthesis", Output: answer})

	return &Trace{
		Steps:         steps,
		Confidence:    confidence(steps),
		RequiresTools: requiresTools(steps),
	}, nil
}

func (r *Reasoner) understand(ctx context.Context, prompt string) (string, error) {
	if r.provider == nil {
		return "Understanding: " + prompt, nil
	}

	p := fmt.Sprintf(`Analyze this problem and explain what is being asked:

Problem: %s

Provide a clear understanding of:
1. What is the main question or goal?
2. What information is provided?
3. What might be needed to solve this?`, prompt)

	return r.provider.Generate(ctx, p, llm.Options{})
}

func (r *Reasoner) decompose(ctx context.Context, prompt, understanding string) ([]string, error) {
	if r.provider == nil {
		return []string{"Sub-problem 1", "Sub-problem 2"}, nil
	}

	p := fmt.Sprintf(`Break this problem into 2-4 smaller, manageable sub-problems:

Original problem: %s
Understanding: %s

List each sub-problem on a new line.`, prompt, understanding)

	response, err := r.provider.Generate(ctx, p, llm.Options{})
	if err != nil {
		return nil, err
	}

	var subs []string
	for _, line := range strings.Split(response, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			subs = append(subs, line)
		}
	}
	return subs, nil
}

func (r *Reasoner) solve(ctx context.Context, subProblem string) (string, error) {
	if r.provider == nil {
		return "Solution to: " + subProblem, nil
	}

	p := fmt.Sprintf(`Solve this specific sub-problem:

Sub-problem: %s

Provide a clear, step-by-step solution.`, subProblem)

	return r.provider.Generate(ctx, p, llm.Options{})
}

func (r *Reasoner) synthesize(ctx context.Context, prompt string, solutions []string) (string, error) {
	if r.provider == nil {
		return "Final synthesized answer", nil
	}

	var sb strings.Builder
	for i, sol := range solutions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, sol)
	}

	p := fmt.Sprintf(`Given these solutions to sub-problems, provide a comprehensive final answer:

Original question: %s

Solutions:
%s
Synthesize a clear, complete final answer.`, prompt, sb.String())

	return r.provider.Generate(ctx, p, llm.Options{})
}

// confidence grows with the number of reasoning steps: 0.5 base plus 0.05
// per step, capped at 0.8.
func confidence(steps []Step) float64 {
	if len(steps) == 0 {
		return 0
	}
	bonus := float64(len(steps)) * 0.05
	if bonus > 0.3 {
		bonus = 0.3
	}
	return 0.5 + bonus
}

var toolKeywords = []string{"search", "calculate", "query", "fetch", "retrieve"}

func requiresTools(steps []Step) bool {
	for _, step := range steps {
		output := strings.ToLower(step.Output)
		for _, kw := range toolKeywords {
			if strings.Contains(output, kw) {
				return true
			}
		}
	}
	return false
}
