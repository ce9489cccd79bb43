package handlers

import (
	"context"

	"github.com/cliniq/clawd/internal/runstore"
)

// researchReport is stubbed until a web search tool is wired in.
func researchReport(ctx context.Context, deps *Deps, req Request, emit EmitFunc) (any, error) {
	emit(runstore.LevelInfo, "Research handler is stubbed.", map[string]any{"prompt": req.Prompt})
	return ResearchReportOutput{
		Kind:  KindResearchReport,
		Title: "Research report (stub)",
		Sections: []ReportSection{
			{Heading: "Next steps", Bullets: []string{"Wire web search", "Extract sources", "Generate report"}},
		},
		Note: "Web search tool not wired yet.",
	}, nil
}

func fallbackChat(ctx context.Context, deps *Deps, req Request, emit EmitFunc) (any, error) {
	emit(runstore.LevelInfo, "Need a quick clarification to route correctly", nil)
	return ClarifyOutput{
		Kind:     KindClarify,
		Prompt:   req.Prompt,
		Question: "Do you want Gmail triage, calendar scheduling, website analysis, or Slack scan?",
	}, nil
}
