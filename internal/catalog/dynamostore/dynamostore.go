// Package dynamostore is a DynamoDB-backed catalog.Store, for deployments
// that need durable job bookkeeping rather than the in-memory backend.
// It reuses the platform's own job-state DynamoDB adapter shape:
// conditional PutItem for uniqueness, a thin item<->record marshaler, and
// a constructor that resolves the AWS region from EC2 instance metadata
// when none is configured.
//
// Catalog entities (clusters, commands, applications) are read-only from
// the coordinator's perspective and are expected to live in their own
// tables, populated out of band; this backend only looks them up.
package dynamostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nodecoord/coordinator/internal/catalog"
	"github.com/nodecoord/coordinator/internal/domain"
)

// API is the subset of the DynamoDB client this backend calls, so tests
// can inject a fake without talking to AWS.
type API interface {
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, input *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Config names the tables this backend talks to.
type Config struct {
	Region            string
	JobsTable         string
	ClustersTable     string
	CommandsTable     string
	ApplicationsTable string
}

// Store is a catalog.Store backed by DynamoDB.
type Store struct {
	client API
	cfg    Config
}

// New resolves an AWS config (auto-detecting region from EC2 metadata if
// Config.Region is empty) and returns a ready Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Store{client: dynamodb.NewFromConfig(awsCfg), cfg: cfg}, nil
}

// NewWithClient injects a client directly, for tests.
func NewWithClient(client API, cfg Config) *Store {
	return &Store{client: client, cfg: cfg}
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	if region == "" {
		if cfg, err := config.LoadDefaultConfig(ctx); err == nil {
			imdsClient := imds.NewFromConfig(cfg)
			if resp, err := imdsClient.GetRegion(ctx, &imds.GetRegionInput{}); err == nil {
				region = resp.Region
			}
		}
	}

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

func (s *Store) CreateJob(ctx context.Context, record domain.JobRecord) error {
	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.cfg.JobsTable),
		Item:                jobToItem(record),
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	}

	_, err := s.client.PutItem(ctx, input)
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return catalog.ErrAlreadyExists
		}
		return fmt.Errorf("dynamostore: create job: %w", err)
	}
	return nil
}

func (s *Store) GetCluster(ctx context.Context, id string) (domain.Cluster, error) {
	item, err := s.getItem(ctx, s.cfg.ClustersTable, "clusterId", id)
	if err != nil {
		return domain.Cluster{}, err
	}
	return domain.Cluster{ID: id, Name: stringAttr(item, "name")}, nil
}

func (s *Store) GetCommand(ctx context.Context, id string) (domain.Command, error) {
	item, err := s.getItem(ctx, s.cfg.CommandsTable, "commandId", id)
	if err != nil {
		return domain.Command{}, err
	}
	cmd := domain.Command{ID: id, Name: stringAttr(item, "name")}
	if v, ok := item["memoryMB"].(*types.AttributeValueMemberN); ok {
		var mb int
		if _, err := fmt.Sscanf(v.Value, "%d", &mb); err == nil {
			cmd.MemoryMB = &mb
		}
	}
	return cmd, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (domain.Application, error) {
	item, err := s.getItem(ctx, s.cfg.ApplicationsTable, "applicationId", id)
	if err != nil {
		return domain.Application{}, err
	}
	return domain.Application{ID: id, Name: stringAttr(item, "name")}, nil
}

func (s *Store) getItem(ctx context.Context, table, keyName, id string) (map[string]types.AttributeValue, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       map[string]types.AttributeValue{keyName: &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamostore: get %s: %w", table, err)
	}
	if out.Item == nil {
		return nil, catalog.ErrNotFound
	}
	return out.Item, nil
}

func (s *Store) UpdateJobWithRuntimeEnvironment(ctx context.Context, binding domain.RuntimeBinding) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.cfg.JobsTable),
		Key:       map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: binding.JobID}},
		UpdateExpression: aws.String(
			"SET clusterId = :c, commandId = :k, applicationIds = :a, memoryMB = :m"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: binding.ClusterID},
			":k": &types.AttributeValueMemberS{Value: binding.CommandID},
			":a": stringSetOrList(binding.ApplicationIDs),
			":m": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", binding.MemoryMB)},
		},
		ConditionExpression: aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return catalog.ErrNotFound
		}
		return fmt.Errorf("dynamostore: update runtime environment: %w", err)
	}
	return nil
}

func (s *Store) GetActiveJobCountForUser(ctx context.Context, user string) (int, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.cfg.JobsTable),
		FilterExpression: aws.String("jobUser = :u AND jobStatus IN (:init, :resolved, :accepted, :running)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u":        &types.AttributeValueMemberS{Value: user},
			":init":     &types.AttributeValueMemberS{Value: string(domain.StatusInit)},
			":resolved": &types.AttributeValueMemberS{Value: string(domain.StatusResolved)},
			":accepted": &types.AttributeValueMemberS{Value: string(domain.StatusAccepted)},
			":running":  &types.AttributeValueMemberS{Value: string(domain.StatusRunning)},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("dynamostore: scan active jobs: %w", err)
	}
	return int(out.Count), nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status domain.Status, message string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.cfg.JobsTable),
		Key:       map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: jobID}},
		UpdateExpression: aws.String("SET jobStatus = :s, statusMessage = :m"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(status)},
			":m": &types.AttributeValueMemberS{Value: message},
		},
		ConditionExpression: aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return catalog.ErrNotFound
		}
		return fmt.Errorf("dynamostore: update job status: %w", err)
	}
	return nil
}

func jobToItem(record domain.JobRecord) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"jobId":           &types.AttributeValueMemberS{Value: record.ID},
		"jobName":         &types.AttributeValueMemberS{Value: record.Name},
		"jobUser":         &types.AttributeValueMemberS{Value: record.User},
		"jobStatus":       &types.AttributeValueMemberS{Value: string(record.Status)},
		"statusMessage":   &types.AttributeValueMemberS{Value: record.StatusMessage},
		"archiveLocation": &types.AttributeValueMemberS{Value: record.ArchiveLocation},
		"executionHost":   &types.AttributeValueMemberS{Value: record.ExecutionHost},
	}
	if record.Version != "" {
		item["version"] = &types.AttributeValueMemberS{Value: record.Version}
	}
	if len(record.Tags) > 0 {
		item["tags"] = stringSetOrList(record.Tags)
	}
	return item
}

func stringAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func stringSetOrList(values []string) types.AttributeValue {
	if len(values) == 0 {
		return &types.AttributeValueMemberL{}
	}
	list := make([]types.AttributeValue, len(values))
	for i, v := range values {
		list[i] = &types.AttributeValueMemberS{Value: v}
	}
	return &types.AttributeValueMemberL{Value: list}
}
