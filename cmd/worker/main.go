package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"advisor-backend/internal/bootstrap"
	"advisor-backend/internal/shared/config"
	"advisor-backend/internal/shared/metrics"
	"advisor-backend/internal/shared/telemetry"
	"advisor-backend/internal/workerproc"
)

const (
	defaultRegion             = "us-east-1"
	defaultVisibilitySeconds  = 1200
	defaultWorkerConcurrency  = 4
	defaultShutdownTimeoutSec = 30

	receiveBatchSize = 10
	receiveWaitSec   = 20
)

type workerConfig struct {
	queueURL          string
	region            string
	visibilitySeconds int
	concurrency       int
	shutdownTimeout   time.Duration
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

func main() {
	cfg := config.Load()
	wcfg := loadWorkerConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(wcfg.region))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	log.Printf("worker started queue=%s concurrency=%d visibility=%ds",
		wcfg.queueURL, wcfg.concurrency, wcfg.visibilitySeconds)
	poll(ctx, wcfg, sqs.NewFromConfig(awsCfg), app.AnalysesService)
}

func loadWorkerConfig(cfg config.Config) workerConfig {
	queueURL := strings.TrimSpace(os.Getenv("ADVISOR_SQS_QUEUE_URL"))
	if queueURL == "" {
		log.Fatal("ADVISOR_SQS_QUEUE_URL is required")
	}
	region := strings.TrimSpace(os.Getenv("AWS_REGION"))
	if region == "" {
		region = defaultRegion
	}
	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = defaultWorkerConcurrency
	}
	return workerConfig{
		queueURL:          queueURL,
		region:            region,
		visibilitySeconds: envInt("ADVISOR_SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds),
		concurrency:       concurrency,
		shutdownTimeout:   time.Duration(envInt("ADVISOR_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second,
	}
}

// poll long-polls the queue until ctx is canceled, then drains in-flight
// jobs up to the shutdown timeout.
func poll(ctx context.Context, wcfg workerConfig, client sqsAPI, processor workerproc.AnalysisProcessor) {
	sem := make(chan struct{}, wcfg.concurrency)
	var wg sync.WaitGroup

pollLoop:
	for ctx.Err() == nil {
		resp, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(wcfg.queueURL),
			MaxNumberOfMessages: receiveBatchSize,
			WaitTimeSeconds:     receiveWaitSec,
			VisibilityTimeout:   int32(wcfg.visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncAnalysisJobsReceived()
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, processor, client, wcfg.queueURL, m)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", wcfg.shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(wcfg.shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

func handleMessage(ctx context.Context, processor workerproc.AnalysisProcessor, client sqsAPI, queueURL string, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)

	decoded, meta, parseErr := workerproc.ParseMessage(body)
	if parseErr != nil {
		fields := baseFields(msg, decoded.AnalysisID, decoded.RequestID)
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = parseErr.Error()
		telemetry.Error("worker.analysis.parse_failed", fields)
		if deleteMessage(ctx, client, queueURL, msg, decoded.AnalysisID, decoded.RequestID) {
			metrics.IncAnalysisJobsDeletedUnrecoverable()
		}
		return
	}

	telemetry.Info("worker.analysis.received", baseFields(msg, decoded.AnalysisID, decoded.RequestID))

	if err := workerproc.HandleMessage(ctx, processor, body); err != nil {
		fields := baseFields(msg, decoded.AnalysisID, decoded.RequestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.analysis.failed", fields)
		metrics.IncAnalysisJobsFailed()
		if workerproc.Unrecoverable(err) {
			if deleteMessage(ctx, client, queueURL, msg, decoded.AnalysisID, decoded.RequestID) {
				metrics.IncAnalysisJobsDeletedUnrecoverable()
			}
		}
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded.AnalysisID, decoded.RequestID) {
		telemetry.Info("worker.analysis.completed", baseFields(msg, decoded.AnalysisID, decoded.RequestID))
		metrics.IncAnalysisJobsCompleted()
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, analysisID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, analysisID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.analysis.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, analysisID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.analysis.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, analysisID, requestID string) map[string]any {
	fields := map[string]any{
		"analysis_id":    analysisID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
