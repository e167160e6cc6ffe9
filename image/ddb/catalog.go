package ddb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/flashio/image"
)

const (
	attrDevice   = "device"
	attrVersion  = "version"
	attrSnapshot = "snapshot"
	attrCreated  = "created"
)

// Client is the subset of the DynamoDB API used by Catalog.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// Catalog is an image.Catalog stored in a DynamoDB table.
type Catalog struct {
	client Client
	table  string
	now    func() time.Time
}

var _ image.Catalog = (*Catalog)(nil)

// NewCatalog returns a catalog over table.
func NewCatalog(client Client, table string) *Catalog {
	return &Catalog{
		client: client,
		table:  table,
		now:    time.Now,
	}
}

func (c *Catalog) query(device string, newestFirst bool) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("device = :device"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":device": &types.AttributeValueMemberS{Value: device},
		},
		ScanIndexForward: aws.Bool(!newestFirst),
		ConsistentRead:   aws.Bool(true),
	}
}

func (c *Catalog) Latest(ctx context.Context, device string) (image.Entry, error) {
	in := c.query(device, true)
	in.Limit = aws.Int32(1)
	resp, err := c.client.Query(ctx, in)
	if err != nil {
		return image.Entry{}, fmt.Errorf("ddb: query %s: %w", device, err)
	}
	if len(resp.Items) == 0 {
		return image.Entry{}, fmt.Errorf("%w: %s", image.ErrNoEntry, device)
	}
	return decodeEntry(resp.Items[0])
}

func (c *Catalog) Commit(ctx context.Context, device string, expected uint64, snapshot string) (image.Entry, error) {
	var current uint64
	latest, err := c.Latest(ctx, device)
	switch {
	case err == nil:
		current = latest.Version
	case !errors.Is(err, image.ErrNoEntry):
		return image.Entry{}, err
	}
	if current != expected {
		return image.Entry{}, fmt.Errorf("%w: %s is at version %d, not %d", image.ErrConflict, device, current, expected)
	}

	e := image.Entry{
		Device:   device,
		Version:  expected + 1,
		Snapshot: snapshot,
		Created:  c.now().UTC(),
	}
	// The condition fails if another writer took this version since Latest.
	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.table),
		Item:                encodeEntry(e),
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return image.Entry{}, fmt.Errorf("%w: %s version %d taken", image.ErrConflict, device, e.Version)
		}
		return image.Entry{}, fmt.Errorf("ddb: commit %s: %w", device, err)
	}
	return e, nil
}

func (c *Catalog) History(ctx context.Context, device string) ([]image.Entry, error) {
	var out []image.Entry
	p := dynamodb.NewQueryPaginator(c.client, c.query(device, true))
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("ddb: query %s: %w", device, err)
		}
		for _, item := range page.Items {
			e, err := decodeEntry(item)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func encodeEntry(e image.Entry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrDevice:   &types.AttributeValueMemberS{Value: e.Device},
		attrVersion:  &types.AttributeValueMemberN{Value: strconv.FormatUint(e.Version, 10)},
		attrSnapshot: &types.AttributeValueMemberS{Value: e.Snapshot},
		attrCreated:  &types.AttributeValueMemberS{Value: e.Created.Format(time.RFC3339Nano)},
	}
}

func decodeEntry(item map[string]types.AttributeValue) (image.Entry, error) {
	device, ok := item[attrDevice].(*types.AttributeValueMemberS)
	if !ok {
		return image.Entry{}, errors.New("ddb: invalid device attribute")
	}
	version, ok := item[attrVersion].(*types.AttributeValueMemberN)
	if !ok {
		return image.Entry{}, errors.New("ddb: invalid version attribute")
	}
	snapshot, ok := item[attrSnapshot].(*types.AttributeValueMemberS)
	if !ok {
		return image.Entry{}, errors.New("ddb: invalid snapshot attribute")
	}
	v, err := strconv.ParseUint(version.Value, 10, 64)
	if err != nil {
		return image.Entry{}, fmt.Errorf("ddb: parse version: %w", err)
	}
	e := image.Entry{Device: device.Value, Version: v, Snapshot: snapshot.Value}
	if created, ok := item[attrCreated].(*types.AttributeValueMemberS); ok {
		e.Created, _ = time.Parse(time.RFC3339Nano, created.Value)
	}
	return e, nil
}
