package cfn

import (
	"context"
	"sort"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 300 * time.Second
)

var errDeadline = errors.New("drift detection deadline exceeded")

// DriftRequest is a drift detection started for a single stack
type DriftRequest struct {
	StackName   string
	DetectionID string
	StartTime   time.Time
}

// DriftOutcome is the result of drift detection across all requested stacks
type DriftOutcome struct {
	Drifted  bool
	Statuses map[string]types.StackDriftStatus
}

// Poller runs drift detection for a set of stacks and waits for all of them
// under one shared deadline.
type Poller struct {
	api      API
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	log      logrus.FieldLogger
}

// NewPoller creates a drift poller. Zero interval or timeout fall back to the defaults.
func (c *Client) NewPoller(clk clock.Clock, interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	return &Poller{
		api:      c.api,
		clock:    clk,
		interval: interval,
		timeout:  timeout,
		log:      c.log,
	}
}

// Detect starts drift detection for every stack, then polls all detections
// concurrently until each one is finished. If the deadline passes while any
// detection is still running the whole call fails with a *TimeoutError.
func (p *Poller) Detect(ctx context.Context, stacks []string) (*DriftOutcome, error) {
	outcome := &DriftOutcome{Statuses: make(map[string]types.StackDriftStatus)}
	if len(stacks) == 0 {
		return outcome, nil
	}

	deadline := p.clock.NewTimer(p.timeout)
	defer deadline.Stop()

	requests, err := p.start(ctx, stacks)
	if err != nil {
		return nil, err
	}

	expired := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-deadline.C():
			close(expired)
		case <-stop:
		}
	}()

	var mu sync.Mutex
	pending := make(map[string]bool, len(requests))
	for _, req := range requests {
		pending[req.StackName] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, req := range requests {
		req := req
		g.Go(func() error {
			status, err := p.wait(gctx, req, expired)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			delete(pending, req.StackName)
			outcome.Statuses[req.StackName] = status
			if status == types.StackDriftStatusDrifted {
				outcome.Drifted = true
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, errDeadline) {
			mu.Lock()
			defer mu.Unlock()
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			sort.Strings(names)
			return nil, &TimeoutError{Timeout: p.timeout, Pending: names}
		}
		return nil, err
	}

	return outcome, nil
}

// start issues one detection per stack name. Every detection is started
// before any polling so that late stacks get their share of the deadline.
func (p *Poller) start(ctx context.Context, stacks []string) ([]DriftRequest, error) {
	seen := make(map[string]bool, len(stacks))
	requests := make([]DriftRequest, 0, len(stacks))

	for _, name := range stacks {
		// a second detection for the same stack would race the first
		if seen[name] {
			continue
		}
		seen[name] = true

		output, err := p.api.DetectStackDrift(ctx, &cloudformation.DetectStackDriftInput{
			StackName: aws.String(name),
		})
		if err != nil {
			return nil, &TransportError{Op: "DetectStackDrift", Stack: name, Err: err}
		}

		req := DriftRequest{
			StackName:   name,
			DetectionID: aws.ToString(output.StackDriftDetectionId),
			StartTime:   p.clock.Now(),
		}
		p.log.WithFields(logrus.Fields{
			"stack":       name,
			"detectionId": req.DetectionID,
		}).Info("Drift detection started")
		requests = append(requests, req)
	}

	return requests, nil
}

func (p *Poller) wait(ctx context.Context, req DriftRequest, expired <-chan struct{}) (types.StackDriftStatus, error) {
	log := p.log.WithFields(logrus.Fields{
		"stack":       req.StackName,
		"detectionId": req.DetectionID,
	})

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-expired:
			return "", errDeadline
		case <-ticker.C():
			output, err := p.api.DescribeStackDriftDetectionStatus(ctx, &cloudformation.DescribeStackDriftDetectionStatusInput{
				StackDriftDetectionId: aws.String(req.DetectionID),
			})
			if err != nil {
				return "", &TransportError{Op: "DescribeStackDriftDetectionStatus", Stack: req.StackName, Err: err}
			}

			switch output.DetectionStatus {
			case types.StackDriftDetectionStatusDetectionInProgress:
				log.Debug("Drift detection in progress")
				continue
			case types.StackDriftDetectionStatusDetectionFailed:
				// some resources could not be checked; the stack status still counts
				log.WithField("reason", aws.ToString(output.DetectionStatusReason)).Warn("Drift detection finished with failures")
			}

			log.WithFields(logrus.Fields{
				"status":  output.StackDriftStatus,
				"elapsed": p.clock.Since(req.StartTime),
			}).Info("Drift detection complete")
			return output.StackDriftStatus, nil
		}
	}
}
