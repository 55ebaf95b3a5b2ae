package editor

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/application/persistence"
	"github.com/Jovicsi/flowminds.ai/application/ports"
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/geometry"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	"github.com/Jovicsi/flowminds.ai/domain/events"
	pkgerrors "github.com/Jovicsi/flowminds.ai/pkg/errors"
)

// Texts stored in a generator node when the AI service gives nothing usable.
const (
	EmptyResultText  = "No response text found."
	FailedResultText = "Error generating AI content. Please check your API key."
)

// Auto-plan layout
const (
	PlanNodeWidth  = 300
	PlanNodeHeight = 200
	PlanSpacing    = 350
)

// FallbackPlan is used when the service answers with something that is
// not a step list.
func FallbackPlan(idea string) []ports.Step {
	return []ports.Step{
		{Title: "Step 1", Description: idea},
		{Title: "Step 2", Description: "Details of the next step..."},
		{Title: "Step 3", Description: "Finalizing the goal."},
	}
}

// ErrorPlan is used when the service could not be reached.
func ErrorPlan() []ports.Step {
	return []ports.Step{{Title: "Error", Description: "Could not generate plan."}}
}

// ExecuteGenerator sends a node's content to the AI service and stores
// the answer in the node's result. A node without content is left alone.
func (e *Editor) ExecuteGenerator(ctx context.Context, nodeID string) (entities.Node, error) {
	e.turn.Lock()
	if err := e.writableLocked(); err != nil {
		e.turn.Unlock()
		return entities.Node{}, err
	}
	node, ok := e.store.Snapshot().Node(nodeID)
	if !ok {
		e.turn.Unlock()
		return entities.Node{}, pkgerrors.NewNotFoundError("node")
	}
	if strings.TrimSpace(node.Data.Content) == "" {
		e.turn.Unlock()
		return node, nil
	}
	processing, empty := true, ""
	_, started, _ := e.store.UpdateNode(nodeID, entities.NodeDataPatch{IsProcessing: &processing, Result: &empty})
	prompt := node.Data.Content
	e.handOff()

	e.publish(ctx, persistence.TriggerContent, started)

	result := e.generate(ctx, prompt)

	e.turn.Lock()
	if e.closed {
		e.turn.Unlock()
		return entities.Node{}, pkgerrors.NewUnavailableError("editor")
	}
	done := false
	updated, finished, ok := e.store.UpdateNode(nodeID, entities.NodeDataPatch{IsProcessing: &done, Result: &result})
	if !ok {
		e.turn.Unlock()
		return entities.Node{}, pkgerrors.NewNotFoundError("node")
	}
	e.handOff()

	e.publish(ctx, persistence.TriggerStructural, finished)
	return updated, nil
}

func (e *Editor) generate(ctx context.Context, prompt string) string {
	ctx, span := e.tracer.Start(ctx, "editor.Generate", trace.WithAttributes(
		attribute.Int("prompt.length", len(prompt)),
	))
	defer span.End()

	if e.ai == nil {
		e.metrics.AIRequest("generate", errNoAI)
		return FailedResultText
	}
	text, err := e.ai.Generate(ctx, prompt)
	e.metrics.AIRequest("generate", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		e.logger.Warn("AI generation failed", zap.Error(err))
		return FailedResultText
	}
	if strings.TrimSpace(text) == "" {
		return EmptyResultText
	}
	return text
}

var errNoAI = errors.New("no AI service configured")

// AutoPlan asks the AI service to break idea into steps and lays them out
// as a chain of notes starting at the centre of the view.
func (e *Editor) AutoPlan(ctx context.Context, idea string) ([]entities.Node, error) {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return nil, pkgerrors.NewValidationError("idea is required")
	}
	e.turn.Lock()
	err := e.writableLocked()
	e.turn.Unlock()
	if err != nil {
		return nil, err
	}

	steps := e.planSteps(ctx, idea)

	e.turn.Lock()
	if err := e.writableLocked(); err != nil {
		e.turn.Unlock()
		return nil, err
	}
	center := geometry.ViewCenter(e.screen, e.viewport)
	nodes := make([]entities.Node, 0, len(steps))
	changes := make([]events.Event, 0, 2*len(steps))
	for i, step := range steps {
		pos := valueobjects.Position{X: center.X + float64(i)*PlanSpacing, Y: center.Y}
		n := entities.NewNode(valueobjects.NewNodeID(), entities.NodeTypeNote, pos)
		n.Width, n.Height = PlanNodeWidth, PlanNodeHeight
		n.Data.Title = step.Title
		n.Data.Content = step.Description
		evt, ok := e.store.AddNode(n)
		if !ok {
			continue
		}
		changes = append(changes, evt)
		if len(nodes) > 0 {
			if _, edgeEvt, ok := e.store.CreateEdge(nodes[len(nodes)-1].ID, n.ID); ok {
				changes = append(changes, edgeEvt)
			}
		}
		nodes = append(nodes, n)
	}
	e.handOff()

	e.publish(ctx, persistence.TriggerStructural, changes...)
	e.logger.Info("Auto-plan added", zap.Int("steps", len(nodes)))
	return nodes, nil
}

func (e *Editor) planSteps(ctx context.Context, idea string) []ports.Step {
	ctx, span := e.tracer.Start(ctx, "editor.PlanSteps")
	defer span.End()

	if e.ai == nil {
		e.metrics.AIRequest("plan", errNoAI)
		return ErrorPlan()
	}
	steps, err := e.ai.PlanSteps(ctx, idea)
	e.metrics.AIRequest("plan", err)
	switch {
	case errors.Is(err, ports.ErrUnparseablePlan):
		e.logger.Debug("Plan not parseable, using fallback")
		return FallbackPlan(idea)
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan failed")
		e.logger.Warn("AI plan failed", zap.Error(err))
		return ErrorPlan()
	case len(steps) == 0:
		return FallbackPlan(idea)
	}
	return steps
}
