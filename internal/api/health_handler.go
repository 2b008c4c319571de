package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/newsletter/internal/pkg/httputil"
	"github.com/redis/go-redis/v9"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the health of one dependency.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// BucketHeader is the slice of the S3 client the content check needs.
type BucketHeader interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// TableDescriber is the slice of the DynamoDB client the store check needs.
type TableDescriber interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// HealthDeps lists what the checker probes. Any field may be left zero;
// its check then reports "not configured".
type HealthDeps struct {
	DB       *sql.DB
	Redis    *redis.Client
	S3       BucketHeader
	S3Bucket string
	Dynamo   TableDescriber
	Table    string
}

// HealthChecker reports on the subscriber store and the optional
// supporting services.
type HealthChecker struct {
	deps      HealthDeps
	startTime time.Time
}

func NewHealthChecker(deps HealthDeps) *HealthChecker {
	return &HealthChecker{deps: deps, startTime: time.Now()}
}

const healthVersion = "1.0.0"

const notConfigured = "not configured"

// HandleHealth always answers 200; the body carries the verdict.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness answers 200 while the process is up.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness answers 503 when the subscriber store is unreachable.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	probes := map[string]func(context.Context) ComponentCheck{
		"database": hc.checkDatabase,
		"dynamodb": hc.checkDynamo,
		"redis":    hc.checkRedis,
		"s3":       hc.checkS3,
	}

	ch := make(chan result, len(probes))
	for name, probe := range probes {
		go func(name string, probe func(context.Context) ComponentCheck) {
			ch <- result{name, probe(ctx)}
		}(name, probe)
	}

	checks := make(map[string]ComponentCheck, len(probes))
	for range probes {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

// timed runs probe under timeout and grades the latency against slow.
func timed(ctx context.Context, timeout, slow time.Duration, okMsg string, probe func(context.Context) error) ComponentCheck {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := probe(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: err.Error()}
	}
	if latency > slow {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: okMsg}
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.deps.DB == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return timed(ctx, 3*time.Second, time.Second, "connected", func(ctx context.Context) error {
		if err := hc.deps.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		return nil
	})
}

func (hc *HealthChecker) checkDynamo(ctx context.Context) ComponentCheck {
	if hc.deps.Dynamo == nil || hc.deps.Table == "" {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return timed(ctx, 3*time.Second, time.Second, fmt.Sprintf("table %q reachable", hc.deps.Table), func(ctx context.Context) error {
		_, err := hc.deps.Dynamo.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &hc.deps.Table})
		if err != nil {
			return fmt.Errorf("DescribeTable failed: %w", err)
		}
		return nil
	})
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.deps.Redis == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return timed(ctx, 2*time.Second, 500*time.Millisecond, "connected", func(ctx context.Context) error {
		if err := hc.deps.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		return nil
	})
}

func (hc *HealthChecker) checkS3(ctx context.Context) ComponentCheck {
	if hc.deps.S3 == nil || hc.deps.S3Bucket == "" {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	return timed(ctx, 3*time.Second, time.Second, fmt.Sprintf("bucket %q accessible", hc.deps.S3Bucket), func(ctx context.Context) error {
		_, err := hc.deps.S3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &hc.deps.S3Bucket})
		if err != nil {
			return fmt.Errorf("HeadBucket failed: %w", err)
		}
		return nil
	})
}

// determineOverallStatus grades the checks:
//   - "unhealthy" if a configured subscriber store (database or dynamodb) is down
//   - "degraded" if anything else configured is down or slow
//   - "healthy" otherwise
func determineOverallStatus(checks map[string]ComponentCheck) string {
	for _, store := range []string{"database", "dynamodb"} {
		if c, ok := checks[store]; ok && c.Status == "down" && c.Message != notConfigured {
			return "unhealthy"
		}
	}
	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
		if c.Status == "down" && c.Message != notConfigured {
			return "degraded"
		}
	}
	return "healthy"
}

// formatUptime renders d like "3d 4h 12m 5s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
