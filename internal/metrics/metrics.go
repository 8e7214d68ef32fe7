// Package metrics emits operational counters to CloudWatch. Emission is
// best-effort; callers log and move on when it fails.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/katinat-coffee/ordering-backend/internal/aws"
)

// Emitter counts order transitions in a CloudWatch namespace.
type Emitter struct {
	client    aws.CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

func NewEmitter(client aws.CloudWatchAPI, namespace string) *Emitter {
	return &Emitter{client: client, namespace: namespace, nowFunc: time.Now}
}

// TransitionApplied records one committed transition into the given status.
func (e *Emitter) TransitionApplied(ctx context.Context, status string) error {
	now := e.nowFunc()
	_, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &e.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: strPtr("OrderTransitions"),
				Timestamp:  &now,
				Unit:       cwtypes.StandardUnitCount,
				Value:      float64Ptr(1),
				Dimensions: []cwtypes.Dimension{
					{Name: strPtr("Status"), Value: &status},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

func strPtr(s string) *string { return &s }

func float64Ptr(f float64) *float64 { return &f }
