// Package dynamodb stores projects and memberships in a single DynamoDB table.
//
// Key layout:
//
//	project  PK=PROJECT#<id>  SK=METADATA        GSI1PK=OWNER#<userID>  GSI1SK=<updated_at>
//	member   PK=PROJECT#<id>  SK=MEMBER#<email>  GSI1PK=EMAIL#<email>   GSI1SK=PROJECT#<id>
//	                                             GSI2PK=USERID#<userID> GSI2SK=PROJECT#<id>
//	profile  PK=EMAIL#<email> SK=PROFILE
package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	pkgerrors "github.com/Jovicsi/flowminds.ai/pkg/errors"
)

// Index names
const (
	OwnerIndex  = "GSI1"
	UserIDIndex = "GSI2"
)

// API is the part of the DynamoDB client the repository uses
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Repository implements the project, member and user ports on DynamoDB
type Repository struct {
	client    API
	tableName string
	logger    *zap.Logger
	clock     func() time.Time
}

// NewRepository creates a new repository
func NewRepository(client API, tableName string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{client: client, tableName: tableName, logger: logger, clock: time.Now}
}

func projectKey(id string) string { return "PROJECT#" + id }
func memberSK(email string) string { return "MEMBER#" + strings.ToLower(email) }

// projectItem is the stored form of a project. The graph is kept as one
// JSON document so it round-trips exactly like the Supabase jsonb columns.
type projectItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	GSI1PK    string `dynamodbav:"GSI1PK,omitempty"`
	GSI1SK    string `dynamodbav:"GSI1SK,omitempty"`
	ProjectID string `dynamodbav:"ProjectID"`
	OwnerID   string `dynamodbav:"OwnerID"`
	Name      string `dynamodbav:"Name"`
	Graph     string `dynamodbav:"Graph"`
	NodeCount int    `dynamodbav:"NodeCount"`
	UpdatedAt string `dynamodbav:"UpdatedAt"`
}

type graphDoc struct {
	Nodes []entities.Node `json:"nodes"`
	Edges []entities.Edge `json:"edges"`
}

func (it projectItem) toProject() (entities.Project, error) {
	var doc graphDoc
	if it.Graph != "" {
		if err := json.Unmarshal([]byte(it.Graph), &doc); err != nil {
			return entities.Project{}, fmt.Errorf("failed to decode graph of %s: %w", it.ProjectID, err)
		}
	}
	updated, _ := time.Parse(time.RFC3339Nano, it.UpdatedAt)
	p := entities.Project{
		ID:        it.ProjectID,
		OwnerID:   it.OwnerID,
		Name:      it.Name,
		Nodes:     doc.Nodes,
		Edges:     doc.Edges,
		UpdatedAt: updated,
	}
	if p.Nodes == nil {
		p.Nodes = []entities.Node{}
	}
	if p.Edges == nil {
		p.Edges = []entities.Edge{}
	}
	return p, nil
}

type memberItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	GSI1PK    string `dynamodbav:"GSI1PK"`
	GSI1SK    string `dynamodbav:"GSI1SK"`
	GSI2PK    string `dynamodbav:"GSI2PK,omitempty"`
	GSI2SK    string `dynamodbav:"GSI2SK,omitempty"`
	MemberID  string `dynamodbav:"MemberID"`
	ProjectID string `dynamodbav:"ProjectID"`
	UserID    string `dynamodbav:"UserID,omitempty"`
	UserEmail string `dynamodbav:"UserEmail"`
	Role      string `dynamodbav:"Role"`
	CreatedAt string `dynamodbav:"CreatedAt"`
}

func (it memberItem) toMember() entities.Member {
	created, _ := time.Parse(time.RFC3339Nano, it.CreatedAt)
	return entities.Member{
		ID:        it.MemberID,
		ProjectID: it.ProjectID,
		UserID:    it.UserID,
		UserEmail: it.UserEmail,
		Role:      valueobjects.Role(it.Role),
		CreatedAt: created,
	}
}

func (r *Repository) key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// GetByID implements ports.ProjectRepository
func (r *Repository) GetByID(ctx context.Context, id string) (*entities.Project, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            r.key(projectKey(id), "METADATA"),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, dbError("get project", err)
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("project")
	}
	var item projectItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	p, err := item.toProject()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetName implements ports.ProjectRepository
func (r *Repository) GetName(ctx context.Context, id string) (string, error) {
	proj := expression.NamesList(expression.Name("Name"))
	expr, err := expression.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return "", fmt.Errorf("failed to build projection: %w", err)
	}
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      r.key(projectKey(id), "METADATA"),
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		return "", dbError("get project name", err)
	}
	if out.Item == nil {
		return "", pkgerrors.NewNotFoundError("project")
	}
	var item struct {
		Name string `dynamodbav:"Name"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", fmt.Errorf("failed to unmarshal project name: %w", err)
	}
	return item.Name, nil
}

// Save implements ports.ProjectRepository
func (r *Repository) Save(ctx context.Context, project *entities.Project) error {
	graph, err := json.Marshal(graphDoc{Nodes: project.Nodes, Edges: project.Edges})
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	stamp := project.UpdatedAt.UTC().Format(time.RFC3339Nano)
	item := projectItem{
		PK:        projectKey(project.ID),
		SK:        "METADATA",
		ProjectID: project.ID,
		OwnerID:   project.OwnerID,
		Name:      project.Name,
		Graph:     string(graph),
		NodeCount: len(project.Nodes),
		UpdatedAt: stamp,
	}
	if project.OwnerID != "" {
		item.GSI1PK = "OWNER#" + project.OwnerID
		item.GSI1SK = stamp
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return dbError("put project", err)
	}

	r.logger.Debug("Project saved to DynamoDB",
		zap.String("projectID", project.ID),
		zap.Int("nodeCount", len(project.Nodes)))
	return nil
}

func (r *Repository) query(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// ListByOwner implements ports.ProjectRepository
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]entities.Project, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value("OWNER#" + ownerID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	items, err := r.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(OwnerIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	})
	if err != nil {
		return nil, dbError("query projects by owner", err)
	}

	var rows []projectItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal projects: %w", err)
	}
	out := make([]entities.Project, 0, len(rows))
	for _, row := range rows {
		p, err := row.toProject()
		if err != nil {
			r.logger.Warn("Skipping unreadable project", zap.String("projectID", row.ProjectID), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ListByIDs implements ports.ProjectRepository
func (r *Repository) ListByIDs(ctx context.Context, ids []string) ([]entities.Project, error) {
	out := make([]entities.Project, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetByID(ctx, id)
		if pkgerrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// FindRole implements ports.MemberRepository
func (r *Repository) FindRole(ctx context.Context, projectID, userID, email string) (valueobjects.Role, bool, error) {
	members, err := r.ListByProject(ctx, projectID)
	if err != nil {
		return "", false, err
	}
	email = strings.ToLower(email)
	for _, m := range members {
		if m.Matches(userID, email) {
			return m.Role, true, nil
		}
	}
	return "", false, nil
}

// ListByProject implements ports.MemberRepository
func (r *Repository) ListByProject(ctx context.Context, projectID string) ([]entities.Member, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(projectKey(projectID))).
		And(expression.Key("SK").BeginsWith("MEMBER#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	items, err := r.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, dbError("query members", err)
	}
	return decodeMembers(items)
}

func decodeMembers(items []map[string]types.AttributeValue) ([]entities.Member, error) {
	var rows []memberItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal members: %w", err)
	}
	out := make([]entities.Member, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toMember())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListByUser implements ports.MemberRepository
func (r *Repository) ListByUser(ctx context.Context, userID, email string) ([]entities.Member, error) {
	seen := make(map[string]bool)
	var out []entities.Member

	lookup := func(index, attr, value string) error {
		keyCond := expression.Key(attr).Equal(expression.Value(value))
		expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
		if err != nil {
			return fmt.Errorf("failed to build query: %w", err)
		}
		items, err := r.query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			IndexName:                 aws.String(index),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err != nil {
			return dbError("query memberships", err)
		}
		members, err := decodeMembers(items)
		if err != nil {
			return err
		}
		for _, m := range members {
			if !seen[m.ID] {
				seen[m.ID] = true
				out = append(out, m)
			}
		}
		return nil
	}

	if email != "" {
		if err := lookup(OwnerIndex, "GSI1PK", "EMAIL#"+strings.ToLower(email)); err != nil {
			return nil, err
		}
	}
	if userID != "" {
		if err := lookup(UserIDIndex, "GSI2PK", "USERID#"+userID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Add implements ports.MemberRepository. The item key includes the email,
// so a second invitation for the same address fails the condition.
func (r *Repository) Add(ctx context.Context, member *entities.Member) error {
	if member.ID == "" {
		member.ID = uuid.New().String()
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = r.clock().UTC()
	}
	email := strings.ToLower(member.UserEmail)
	item := memberItem{
		PK:        projectKey(member.ProjectID),
		SK:        memberSK(email),
		GSI1PK:    "EMAIL#" + email,
		GSI1SK:    projectKey(member.ProjectID),
		MemberID:  member.ID,
		ProjectID: member.ProjectID,
		UserID:    member.UserID,
		UserEmail: email,
		Role:      string(member.Role),
		CreatedAt: member.CreatedAt.Format(time.RFC3339Nano),
	}
	if member.UserID != "" {
		item.GSI2PK = "USERID#" + member.UserID
		item.GSI2SK = projectKey(member.ProjectID)
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal member: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name("PK"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewConflictError("user already has access to this project")
		}
		return dbError("put member", err)
	}
	return nil
}

func (r *Repository) findMember(ctx context.Context, projectID, memberID string) (entities.Member, error) {
	members, err := r.ListByProject(ctx, projectID)
	if err != nil {
		return entities.Member{}, err
	}
	for _, m := range members {
		if m.ID == memberID {
			return m, nil
		}
	}
	return entities.Member{}, pkgerrors.NewNotFoundError("member")
}

// UpdateRole implements ports.MemberRepository
func (r *Repository) UpdateRole(ctx context.Context, projectID, memberID string, role valueobjects.Role) error {
	m, err := r.findMember(ctx, projectID, memberID)
	if err != nil {
		return err
	}
	update := expression.Set(expression.Name("Role"), expression.Value(string(role)))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}
	if _, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       r.key(projectKey(projectID), memberSK(m.UserEmail)),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}); err != nil {
		return dbError("update member", err)
	}
	return nil
}

// Remove implements ports.MemberRepository
func (r *Repository) Remove(ctx context.Context, projectID, memberID string) error {
	m, err := r.findMember(ctx, projectID, memberID)
	if err != nil {
		return err
	}
	if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       r.key(projectKey(projectID), memberSK(m.UserEmail)),
	}); err != nil {
		return dbError("delete member", err)
	}
	return nil
}

// RegisterProfile records the account id behind an email, for invitations
func (r *Repository) RegisterProfile(ctx context.Context, userID, email string) error {
	email = strings.ToLower(email)
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			"PK":     &types.AttributeValueMemberS{Value: "EMAIL#" + email},
			"SK":     &types.AttributeValueMemberS{Value: "PROFILE"},
			"UserID": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return dbError("put profile", err)
	}
	return nil
}

// FindUserIDByEmail implements ports.UserDirectory
func (r *Repository) FindUserIDByEmail(ctx context.Context, email string) (string, bool, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       r.key("EMAIL#"+strings.ToLower(email), "PROFILE"),
	})
	if err != nil {
		return "", false, dbError("get profile", err)
	}
	if out.Item == nil {
		return "", false, nil
	}
	var item struct {
		UserID string `dynamodbav:"UserID"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return item.UserID, item.UserID != "", nil
}

// dbError wraps a DynamoDB failure. Throttling is reported as Unavailable
// so callers can tell it apart from a broken request.
func dbError(op string, err error) *pkgerrors.AppError {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
			return pkgerrors.NewUnavailableError("dynamodb").WithCause(err)
		}
	}
	return pkgerrors.NewDatabaseError(op, err)
}
