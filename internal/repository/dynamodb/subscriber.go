// Package dynamodb stores subscribers in a single DynamoDB table.
//
// The table is keyed on "id" and carries three global secondary indexes:
//
//	email-index   email (hash), subscribed_at (range)
//	token-index   unsubscribe_token (hash)
//	status-index  status (hash), subscribed_at (range)
//
// DynamoDB has no partial unique index, so the one-live-record-per-email rule
// is held by a guard item ("active-email#<email>") written in the same
// transaction as the subscriber. Guard items carry no email, token or status
// attribute and so never appear in the indexes.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ignite/newsletter/internal/domain"
)

const (
	EmailIndex  = "email-index"
	TokenIndex  = "token-index"
	StatusIndex = "status-index"

	guardPrefix = "active-email#"

	// Fixed width so range keys sort lexically in time order.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// API is the subset of the DynamoDB client the repository uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// item is the stored shape of a subscriber.
type item struct {
	ID             string  `dynamodbav:"id"`
	Email          string  `dynamodbav:"email"`
	Status         string  `dynamodbav:"status"`
	SubscribedAt   string  `dynamodbav:"subscribed_at"`
	ConfirmedAt    *string `dynamodbav:"confirmed_at,omitempty"`
	UnsubscribedAt *string `dynamodbav:"unsubscribed_at,omitempty"`
	Token          string  `dynamodbav:"unsubscribe_token"`
}

type guard struct {
	ID    string `dynamodbav:"id"`
	Owner string `dynamodbav:"owner"`
}

// SubscriberRepo implements subscription.Repository on DynamoDB.
type SubscriberRepo struct {
	client API
	table  string
}

// NewSubscriberRepo creates a repository over table.
func NewSubscriberRepo(client API, table string) *SubscriberRepo {
	return &SubscriberRepo{client: client, table: table}
}

func (r *SubscriberRepo) Save(ctx context.Context, s *domain.Subscriber) error {
	rec := s.Record()

	prev, err := r.get(ctx, rec.ID)
	if errors.Is(err, domain.ErrNotFound) {
		prev, err = r.FindByToken(ctx, rec.Token)
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		prev = nil
	case err != nil:
		return fmt.Errorf("save subscriber: %w", err)
	}

	if prev != nil {
		if prev.Token() != rec.Token {
			return fmt.Errorf("save subscriber %s: token is immutable: %w", prev.ID(), domain.ErrConflict)
		}
		rec.ID = prev.ID()
	}

	av, err := attributevalue.MarshalMap(toItem(rec))
	if err != nil {
		return fmt.Errorf("marshaling subscriber: %w", err)
	}
	writes := []types.TransactWriteItem{{
		Put: &types.Put{TableName: aws.String(r.table), Item: av},
	}}

	ownerCond := map[string]types.AttributeValue{
		":owner": &types.AttributeValueMemberS{Value: rec.ID},
	}
	if rec.Status != domain.StatusUnsubscribed {
		g, err := attributevalue.MarshalMap(guard{ID: guardPrefix + rec.Email, Owner: rec.ID})
		if err != nil {
			return fmt.Errorf("marshaling email guard: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{Put: &types.Put{
			TableName:                 aws.String(r.table),
			Item:                      g,
			ConditionExpression:       aws.String("attribute_not_exists(id) OR #owner = :owner"),
			ExpressionAttributeNames:  map[string]string{"#owner": "owner"},
			ExpressionAttributeValues: ownerCond,
		}})
	} else if prev != nil && !prev.IsUnsubscribed() {
		writes = append(writes, r.releaseGuard(rec.Email, rec.ID))
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err != nil {
		return wrapWriteErr("save subscriber", err)
	}
	return nil
}

func (r *SubscriberRepo) releaseGuard(email, owner string) types.TransactWriteItem {
	return types.TransactWriteItem{Delete: &types.Delete{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: guardPrefix + email},
		},
		ConditionExpression:      aws.String("attribute_not_exists(id) OR #owner = :owner"),
		ExpressionAttributeNames: map[string]string{"#owner": "owner"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	}}
}

func wrapWriteErr(op string, err error) error {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		return fmt.Errorf("%s: %w", op, domain.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *SubscriberRepo) get(ctx context.Context, id string) (*domain.Subscriber, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting subscriber from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return nil, domain.ErrNotFound
	}
	return fromAttributes(out.Item)
}

// FindByEmail returns the most recently subscribed record for email.
func (r *SubscriberRepo) FindByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	return r.queryOne(ctx, EmailIndex, "email", email, false)
}

func (r *SubscriberRepo) FindByToken(ctx context.Context, token string) (*domain.Subscriber, error) {
	return r.queryOne(ctx, TokenIndex, "unsubscribe_token", token, true)
}

func (r *SubscriberRepo) FindByID(ctx context.Context, id string) (*domain.Subscriber, error) {
	return r.get(ctx, id)
}

func (r *SubscriberRepo) queryOne(ctx context.Context, index, attr, value string, forward bool) (*domain.Subscriber, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#k = :v"),
		ExpressionAttributeNames:  map[string]string{"#k": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		ScanIndexForward:          aws.Bool(forward),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", index, err)
	}
	if len(out.Items) == 0 {
		return nil, domain.ErrNotFound
	}
	return fromAttributes(out.Items[0])
}

// FindAll returns every record, newest first.
func (r *SubscriberRepo) FindAll(ctx context.Context) ([]*domain.Subscriber, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:        aws.String(r.table),
		FilterExpression: aws.String("attribute_exists(email)"),
	})
	var items []item
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scanning subscribers: %w", err)
		}
		var batch []item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshaling subscribers: %w", err)
		}
		items = append(items, batch...)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].SubscribedAt > items[j].SubscribedAt })
	return fromItems(items)
}

// FindByStatus returns records in status, oldest first.
func (r *SubscriberRepo) FindByStatus(ctx context.Context, status domain.SubscriberStatus) ([]*domain.Subscriber, error) {
	p := dynamodb.NewQueryPaginator(r.client, r.statusQuery(status, types.SelectAllAttributes))
	var items []item
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", StatusIndex, err)
		}
		var batch []item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshaling subscribers: %w", err)
		}
		items = append(items, batch...)
	}
	return fromItems(items)
}

func (r *SubscriberRepo) statusQuery(status domain.SubscriberStatus, sel types.Select) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		IndexName:                 aws.String(StatusIndex),
		KeyConditionExpression:    aws.String("#s = :v"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: string(status)}},
		ScanIndexForward:          aws.Bool(true),
		Select:                    sel,
	}
}

func (r *SubscriberRepo) CountByStatus(ctx context.Context, status domain.SubscriberStatus) (int, error) {
	p := dynamodb.NewQueryPaginator(r.client, r.statusQuery(status, types.SelectCount))
	n := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("counting subscribers by status: %w", err)
		}
		n += int(page.Count)
	}
	return n, nil
}

func (r *SubscriberRepo) Count(ctx context.Context) (int, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:        aws.String(r.table),
		FilterExpression: aws.String("attribute_exists(email)"),
		Select:           types.SelectCount,
	})
	n := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("counting subscribers: %w", err)
		}
		n += int(page.Count)
	}
	return n, nil
}

// Delete removes a record and, if it was live, its email guard.
func (r *SubscriberRepo) Delete(ctx context.Context, id string) error {
	s, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	writes := []types.TransactWriteItem{{Delete: &types.Delete{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	}}}
	if !s.IsUnsubscribed() {
		writes = append(writes, r.releaseGuard(s.Email(), id))
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err != nil {
		return wrapWriteErr("delete subscriber", err)
	}
	return nil
}

func toItem(rec domain.SubscriberRecord) item {
	return item{
		ID:             rec.ID,
		Email:          rec.Email,
		Status:         string(rec.Status),
		SubscribedAt:   formatTime(rec.SubscribedAt),
		ConfirmedAt:    formatTimePtr(rec.ConfirmedAt),
		UnsubscribedAt: formatTimePtr(rec.UnsubscribedAt),
		Token:          rec.Token,
	}
}

func fromAttributes(av map[string]types.AttributeValue) (*domain.Subscriber, error) {
	var it item
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return nil, fmt.Errorf("unmarshaling subscriber: %w", err)
	}
	return fromItem(it)
}

func fromItems(items []item) ([]*domain.Subscriber, error) {
	out := make([]*domain.Subscriber, 0, len(items))
	for _, it := range items {
		s, err := fromItem(it)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func fromItem(it item) (*domain.Subscriber, error) {
	subscribedAt, err := time.Parse(timeLayout, it.SubscribedAt)
	if err != nil {
		return nil, fmt.Errorf("subscriber %s: bad subscribed_at: %w", it.ID, err)
	}
	confirmedAt, err := parseTimePtr(it.ConfirmedAt)
	if err != nil {
		return nil, fmt.Errorf("subscriber %s: bad confirmed_at: %w", it.ID, err)
	}
	unsubscribedAt, err := parseTimePtr(it.UnsubscribedAt)
	if err != nil {
		return nil, fmt.Errorf("subscriber %s: bad unsubscribed_at: %w", it.ID, err)
	}
	return domain.SubscriberFromRecord(domain.SubscriberRecord{
		ID:             it.ID,
		Email:          it.Email,
		Status:         domain.SubscriberStatus(it.Status),
		SubscribedAt:   subscribedAt,
		ConfirmedAt:    confirmedAt,
		UnsubscribedAt: unsubscribedAt,
		Token:          it.Token,
	}), nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
