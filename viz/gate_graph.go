// ABOUTME: Stage gate graph generation
// ABOUTME: Renders the pipeline as a Graphviz graph with required fields on each gated transition
package viz

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/harperreed/dealflow/stagegate"
)

// GenerateGateGraph renders stages as nodes in pipeline order. Consecutive
// stages are linked, and every rule adds an edge labeled with its required
// fields. counts, when non-nil, annotates each stage with its opportunity count.
func GenerateGateGraph(ctx context.Context, policy *stagegate.Policy, counts map[string]int) (string, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create graphviz instance: %w", err)
	}
	defer gv.Close()

	graph, err := gv.Graph()
	if err != nil {
		return "", fmt.Errorf("failed to create graph: %w", err)
	}
	defer graph.Close()

	graph.SetLabel("Stage Gates")
	graph.SetRankDir(cgraph.LRRank)

	stages := policy.Stages()
	nodes := make(map[string]*cgraph.Node, len(stages))
	for _, stage := range stages {
		node, err := graph.CreateNodeByName(stage)
		if err != nil {
			return "", fmt.Errorf("failed to create stage node: %w", err)
		}
		label := stage
		if counts != nil {
			label = fmt.Sprintf("%s\n(%d)", stage, counts[stage])
		}
		node.SetLabel(label)
		node.SetShape("box")
		node.SetStyle("filled")
		node.SetFillColor("lightblue")
		nodes[stage] = node
	}

	gated := map[[2]string]bool{}
	for _, rule := range policy.Rules() {
		to := policy.CanonicalStage(rule.ToStage)
		if nodes[to] == nil {
			continue
		}

		var sources []string
		if rule.FromStage == stagegate.Wildcard {
			// Closed stages are terminal, so a wildcard gate applies from every open stage.
			for _, stage := range stages {
				if _, ok := policy.NextStage(stage); ok && stage != to {
					sources = append(sources, stage)
				}
			}
		} else if from := policy.CanonicalStage(rule.FromStage); nodes[from] != nil {
			sources = append(sources, from)
		}

		for _, from := range sources {
			edge, err := graph.CreateEdgeByName("", nodes[from], nodes[to])
			if err != nil {
				return "", fmt.Errorf("failed to create gate edge: %w", err)
			}
			edge.SetLabel(requiredLabel(rule))
			edge.SetColor("orange")
			if rule.FromStage == stagegate.Wildcard {
				edge.SetStyle("dashed")
			}
			gated[[2]string{from, to}] = true
		}
	}

	for i := 0; i+1 < len(stages); i++ {
		if _, ok := policy.NextStage(stages[i]); !ok {
			continue
		}
		if gated[[2]string{stages[i], stages[i+1]}] {
			continue
		}
		if _, err := graph.CreateEdgeByName("", nodes[stages[i]], nodes[stages[i+1]]); err != nil {
			return "", fmt.Errorf("failed to create stage edge: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.XDOT, &buf); err != nil {
		return "", fmt.Errorf("failed to render graph: %w", err)
	}

	return buf.String(), nil
}

func requiredLabel(rule stagegate.Rule) string {
	names := make([]string, 0, len(rule.RequiredFields))
	for _, f := range rule.RequiredFields {
		names = append(names, f.APIName)
	}
	return strings.Join(names, "\n")
}
