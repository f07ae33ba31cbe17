package core

import (
	"context"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the tenant-scoped event pipeline: the durable job queue, the
// subscription registry, the transactional outbox publisher, and the webhook
// delivery worker all hang off it.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	urlValidator      URLValidator
	signer            WebhookSigner
	retryLimiter      RetryLimiter
	jobStore          JobStore
	subscriptionStore SubscriptionStore
	outboxStore       PublishStore
	deliveryStore     DeliveryStore
	activitySink      ActivitySink
	jobEnqueuer       JobEnqueuer
	httpClient        *http.Client
	queueBackoff      BackoffPolicy
	deliveryBackoff   BackoffPolicy
	now               func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	SecretProvider    SecretProvider
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	URLValidator      URLValidator
	Signer            WebhookSigner
	RetryLimiter      RetryLimiter
	JobStore          JobStore
	SubscriptionStore SubscriptionStore
	OutboxStore       PublishStore
	DeliveryStore     DeliveryStore
	ActivitySink      ActivitySink
	JobEnqueuer       JobEnqueuer
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("dispatch", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("dispatch"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.urlValidator == nil {
		builder.urlValidator = NewDestinationGuard()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.jobStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				builder.jobStore = storeProvider.JobStore()
				if builder.subscriptionStore == nil {
					builder.subscriptionStore = storeProvider.SubscriptionStore()
				}
				if builder.outboxStore == nil {
					builder.outboxStore = storeProvider.OutboxStore()
				}
				if builder.deliveryStore == nil {
					builder.deliveryStore = storeProvider.DeliveryStore()
				}
				if builder.activitySink == nil {
					builder.activitySink = storeProvider.ActivitySink()
				}
			}
		}
	}

	if builder.httpClient == nil {
		builder.httpClient = NewDeliveryHTTPClient(finalConfig.Delivery.Timeout)
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		urlValidator:      builder.urlValidator,
		signer:            builder.signer,
		retryLimiter:      builder.retryLimiter,
		jobStore:          builder.jobStore,
		subscriptionStore: builder.subscriptionStore,
		outboxStore:       builder.outboxStore,
		deliveryStore:     builder.deliveryStore,
		activitySink:      builder.activitySink,
		jobEnqueuer:       builder.jobEnqueuer,
		httpClient:        builder.httpClient,
		queueBackoff: NewBackoffPolicy(
			finalConfig.Queue.InitialBackoff,
			finalConfig.Queue.MaxBackoff,
			defaultBackoffJitter,
		),
		deliveryBackoff: NewBackoffPolicy(
			finalConfig.Delivery.InitialBackoff,
			finalConfig.Delivery.MaxBackoff,
			defaultBackoffJitter,
		),
		now: builder.now,
	}, nil
}

const defaultBackoffJitter = 0.2

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		SecretProvider:    s.secretProvider,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		URLValidator:      s.urlValidator,
		Signer:            s.signer,
		RetryLimiter:      s.retryLimiter,
		JobStore:          s.jobStore,
		SubscriptionStore: s.subscriptionStore,
		OutboxStore:       s.outboxStore,
		DeliveryStore:     s.deliveryStore,
		ActivitySink:      s.activitySink,
		JobEnqueuer:       s.jobEnqueuer,
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) clock() func() time.Time {
	if s == nil || s.now == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return s.now
}

func (s *Service) recordActivity(ctx context.Context, entry ActivityEntry) {
	if s == nil || s.activitySink == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock()()
	}
	if err := s.activitySink.Record(ctx, entry); err != nil {
		s.logError(ctx, "activity record failed", map[string]any{
			"tenant_id": entry.TenantID,
			"action":    entry.Action,
			"error":     err.Error(),
		})
	}
}
