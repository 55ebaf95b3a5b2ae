// Package eventbridge announces completed project writes on an EventBridge bus.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/application/ports"
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
)

const (
	// Source identifies events emitted by the canvas engine
	Source = "flowminds.canvas"
	// DetailTypeProjectSaved is the detail-type of a save notification
	DetailTypeProjectSaved = "project.saved"
)

// API is the part of the EventBridge client the publisher uses
type API interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// ProjectSavedDetail is the event body. It carries counts, not the graph.
type ProjectSavedDetail struct {
	ProjectID string    `json:"projectId"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	NodeCount int       `json:"nodeCount"`
	EdgeCount int       `json:"edgeCount"`
	SavedAt   time.Time `json:"savedAt"`
}

// Publisher implements ports.SaveListener
type Publisher struct {
	client       API
	eventBusName string
	logger       *zap.Logger
}

// NewPublisher creates a new EventBridge publisher
func NewPublisher(client API, eventBusName string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, eventBusName: eventBusName, logger: logger}
}

// ProjectSaved publishes a project.saved event
func (p *Publisher) ProjectSaved(ctx context.Context, project *entities.Project) error {
	detail := ProjectSavedDetail{
		ProjectID: project.ID,
		OwnerID:   project.OwnerID,
		Name:      project.Name,
		NodeCount: len(project.Nodes),
		EdgeCount: len(project.Edges),
		SavedAt:   project.UpdatedAt,
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(Source),
			DetailType:   aws.String(DetailTypeProjectSaved),
			Detail:       aws.String(string(data)),
			Time:         aws.Time(project.UpdatedAt),
			Resources:    []string{fmt.Sprintf("arn:aws:flowminds::project/%s", project.ID)},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for _, entry := range result.Entries {
			if entry.ErrorCode != nil {
				p.logger.Error("Failed to publish event",
					zap.String("eventType", DetailTypeProjectSaved),
					zap.String("errorCode", *entry.ErrorCode),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("%d events failed to publish", result.FailedEntryCount)
	}

	p.logger.Debug("Events published to EventBridge",
		zap.String("projectID", project.ID),
		zap.String("eventBus", p.eventBusName),
	)
	return nil
}

var _ ports.SaveListener = (*Publisher)(nil)
