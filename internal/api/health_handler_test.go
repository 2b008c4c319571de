package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct{ err error }

func (f fakeBucket) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.err
}

type fakeTable struct{ err error }

func (f fakeTable) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, f.err
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client
}

func TestHealthAllUp(t *testing.T) {
	hc := NewHealthChecker(HealthDeps{
		Redis:    setupTestRedis(t),
		S3:       fakeBucket{},
		S3Bucket: "issues",
		Dynamo:   fakeTable{},
		Table:    "subscribers",
	})

	checks := hc.runAllChecks(context.Background())
	require.Len(t, checks, 4)
	assert.Equal(t, "up", checks["redis"].Status)
	assert.Equal(t, "up", checks["s3"].Status)
	assert.Equal(t, "up", checks["dynamodb"].Status)
	assert.Equal(t, notConfigured, checks["database"].Message)
	assert.Equal(t, "healthy", determineOverallStatus(checks))
}

func TestReadinessFailsWhenStoreDown(t *testing.T) {
	hc := NewHealthChecker(HealthDeps{Dynamo: fakeTable{err: errors.New("no route")}, Table: "subscribers"})

	rr := httptest.NewRecorder()
	hc.HandleReadiness(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	hc.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"unhealthy"`)
}

func TestDegradedWhenOptionalDown(t *testing.T) {
	checks := map[string]ComponentCheck{
		"database": {Status: "up"},
		"s3":       {Status: "down", Message: "HeadBucket failed"},
	}
	assert.Equal(t, "degraded", determineOverallStatus(checks))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5s", formatUptime(5*time.Second))
	assert.Equal(t, "2m 5s", formatUptime(2*time.Minute+5*time.Second))
	assert.Equal(t, "1d 1h 0m 0s", formatUptime(25*time.Hour))
}
