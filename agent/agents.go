package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

// Completer is the LLM boundary. Implementations are external
// collaborators (providers, gateways); the pipeline only needs prompt in,
// text out, fallibly.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Agent role labels.
const (
	TypeAnalysis      = "analysis"
	TypeReview        = "review"
	TypeCoding        = "coding"
	TypeTesting       = "testing"
	TypeDocumentation = "documentation"
)

// requireString pulls a non-empty string field from the input mapping.
// A missing or empty field is a validation-class failure and is never
// retried.
func requireString(input map[string]any, key string) (string, error) {
	v, ok := input[key]
	if !ok {
		return "", types.NewPermanentAgentError(fmt.Sprintf("missing required input %q", key), nil)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", types.NewPermanentAgentError(fmt.Sprintf("input %q must be a non-empty string", key), nil)
	}
	return s, nil
}

// AnalysisAgent turns raw requirements into an analysis document.
type AnalysisAgent struct {
	Base
	completer Completer
}

// NewAnalysisAgent creates the analysis stage agent.
func NewAnalysisAgent(completer Completer, config map[string]any, logger *zap.Logger) *AnalysisAgent {
	a := &AnalysisAgent{
		Base:      NewBase(TypeAnalysis, config, logger),
		completer: completer,
	}
	a.bind(a.processAnalysis)
	return a
}

func (a *AnalysisAgent) processAnalysis(ctx context.Context, input map[string]any) (map[string]any, error) {
	requirements, err := requireString(input, "requirements")
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Analyze the following software requirements and produce a technical plan "+
			"covering architecture, components, and risks.\n\nRequirements:\n%s",
		requirements)

	output, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("analysis completion: %w", err)
	}

	title := requirements
	if idx := strings.IndexByte(title, '\n'); idx > 0 {
		title = title[:idx]
	}
	if len(title) > 80 {
		title = title[:80]
	}

	return map[string]any{
		"output": output,
		"title":  "Analysis: " + title,
	}, nil
}

// ReviewAgent condenses an analysis into a reviewable summary for the
// human approval gate.
type ReviewAgent struct {
	Base
	completer Completer
}

// NewReviewAgent creates the approval-gate review agent.
func NewReviewAgent(completer Completer, config map[string]any, logger *zap.Logger) *ReviewAgent {
	a := &ReviewAgent{
		Base:      NewBase(TypeReview, config, logger),
		completer: completer,
	}
	a.bind(a.processReview)
	return a
}

func (a *ReviewAgent) processReview(ctx context.Context, input map[string]any) (map[string]any, error) {
	analysis, err := requireString(input, "analysis")
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Summarize the following technical analysis for a human reviewer. "+
			"Call out decisions that need sign-off.\n\nAnalysis:\n%s",
		analysis)

	output, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("review completion: %w", err)
	}

	return map[string]any{"output": output}, nil
}

// CodingAgent generates the project implementation from the approved
// analysis.
type CodingAgent struct {
	Base
	completer Completer
}

// NewCodingAgent creates the coding stage agent.
func NewCodingAgent(completer Completer, config map[string]any, logger *zap.Logger) *CodingAgent {
	a := &CodingAgent{
		Base:      NewBase(TypeCoding, config, logger),
		completer: completer,
	}
	a.bind(a.processCoding)
	return a
}

func (a *CodingAgent) processCoding(ctx context.Context, input map[string]any) (map[string]any, error) {
	requirements, err := requireString(input, "requirements")
	if err != nil {
		return nil, err
	}
	analysis, err := requireString(input, "analysis")
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Implement the project described below. Follow the approved analysis.\n\n"+
			"Requirements:\n%s\n\nAnalysis:\n%s",
		requirements, analysis)

	output, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("coding completion: %w", err)
	}

	return map[string]any{"output": output}, nil
}

// TestingAgent produces a test suite for the generated code.
type TestingAgent struct {
	Base
	completer Completer
}

// NewTestingAgent creates the testing stage agent.
func NewTestingAgent(completer Completer, config map[string]any, logger *zap.Logger) *TestingAgent {
	a := &TestingAgent{
		Base:      NewBase(TypeTesting, config, logger),
		completer: completer,
	}
	a.bind(a.processTesting)
	return a
}

func (a *TestingAgent) processTesting(ctx context.Context, input map[string]any) (map[string]any, error) {
	code, err := requireString(input, "code")
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Write a test suite for the following implementation. Cover the happy "+
			"path and the failure modes.\n\nImplementation:\n%s",
		code)

	output, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("testing completion: %w", err)
	}

	return map[string]any{"output": output}, nil
}

// DocumentationAgent writes project documentation from the generated
// code and tests.
type DocumentationAgent struct {
	Base
	completer Completer
}

// NewDocumentationAgent creates the documentation stage agent.
func NewDocumentationAgent(completer Completer, config map[string]any, logger *zap.Logger) *DocumentationAgent {
	a := &DocumentationAgent{
		Base:      NewBase(TypeDocumentation, config, logger),
		completer: completer,
	}
	a.bind(a.processDocumentation)
	return a
}

func (a *DocumentationAgent) processDocumentation(ctx context.Context, input map[string]any) (map[string]any, error) {
	code, err := requireString(input, "code")
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Write user and developer documentation for the following project.\n\n"+
			"Implementation:\n%s",
		code)
	if tests, ok := input["tests"].(string); ok && tests != "" {
		prompt += fmt.Sprintf("\n\nTest suite:\n%s", tests)
	}

	output, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("documentation completion: %w", err)
	}

	return map[string]any{"output": output}, nil
}
