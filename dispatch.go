package dispatch

import "github.com/goliatone/go-dispatch/core"

type Config = core.Config

type QueueConfig = core.QueueConfig

type DeliveryConfig = core.DeliveryConfig

type RetryConfig = core.RetryConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type JobStore = core.JobStore
type SubscriptionStore = core.SubscriptionStore
type PublishStore = core.PublishStore
type DeliveryStore = core.DeliveryStore
type ActivitySink = core.ActivitySink
type StoreProvider = core.StoreProvider
type SecretProvider = core.SecretProvider
type RetryLimiter = core.RetryLimiter
type URLValidator = core.URLValidator
type WebhookSigner = core.WebhookSigner
type BackoffPolicy = core.BackoffPolicy
type JobEnqueuer = core.JobEnqueuer
type JobDequeuer = core.JobDequeuer
type DrainRunner = core.DrainRunner

type Job = core.Job
type Subscription = core.Subscription
type CreatedSubscription = core.CreatedSubscription
type OutboxEntry = core.OutboxEntry
type DeliveryAttempt = core.DeliveryAttempt
type EventEnvelope = core.EventEnvelope
type EventType = core.EventType
type FanOutResult = core.FanOutResult
type DrainStats = core.DrainStats

type EnqueueJobInput = core.EnqueueJobInput
type CreateSubscriptionInput = core.CreateSubscriptionInput
type UpdateSubscriptionInput = core.UpdateSubscriptionInput

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithSecretProvider    = core.WithSecretProvider
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithURLValidator      = core.WithURLValidator
	WithWebhookSigner     = core.WithWebhookSigner
	WithRetryLimiter      = core.WithRetryLimiter
	WithStoreProvider     = core.WithStoreProvider
	WithJobStore          = core.WithJobStore
	WithSubscriptionStore = core.WithSubscriptionStore
	WithOutboxStore       = core.WithOutboxStore
	WithDeliveryStore     = core.WithDeliveryStore
	WithActivitySink      = core.WithActivitySink
	WithJobEnqueuer       = core.WithJobEnqueuer
	WithHTTPClient        = core.WithHTTPClient
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

func NewDrainRunner(service *Service, dequeuer JobDequeuer, opts ...core.DrainRunnerOption) (*DrainRunner, error) {
	return core.NewDrainRunner(service, dequeuer, opts...)
}
