package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
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
	now               func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithURLValidator(validator URLValidator) Option {
	return func(b *serviceBuilder) {
		b.urlValidator = validator
	}
}

func WithWebhookSigner(signer WebhookSigner) Option {
	return func(b *serviceBuilder) {
		b.signer = signer
	}
}

func WithRetryLimiter(limiter RetryLimiter) Option {
	return func(b *serviceBuilder) {
		b.retryLimiter = limiter
	}
}

func WithJobStore(store JobStore) Option {
	return func(b *serviceBuilder) {
		b.jobStore = store
	}
}

func WithSubscriptionStore(store SubscriptionStore) Option {
	return func(b *serviceBuilder) {
		b.subscriptionStore = store
	}
}

func WithOutboxStore(store PublishStore) Option {
	return func(b *serviceBuilder) {
		b.outboxStore = store
	}
}

func WithDeliveryStore(store DeliveryStore) Option {
	return func(b *serviceBuilder) {
		b.deliveryStore = store
	}
}

func WithActivitySink(sink ActivitySink) Option {
	return func(b *serviceBuilder) {
		b.activitySink = sink
	}
}

func WithStoreProvider(provider StoreProvider) Option {
	return func(b *serviceBuilder) {
		if provider == nil {
			return
		}
		b.jobStore = provider.JobStore()
		b.subscriptionStore = provider.SubscriptionStore()
		b.outboxStore = provider.OutboxStore()
		b.deliveryStore = provider.DeliveryStore()
		b.activitySink = provider.ActivitySink()
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(b *serviceBuilder) {
		b.httpClient = client
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("dispatch", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		signer:          NewWebhookSigner(),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return dispatchErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || cfg.ServiceName != "" {
		layer["service_name"] = cfg.ServiceName
	}
	queue := map[string]any{}
	if includeZero || cfg.Queue.MaxAttempts != 0 {
		queue["max_attempts"] = cfg.Queue.MaxAttempts
	}
	if includeZero || cfg.Queue.InitialBackoff != 0 {
		queue["initial_backoff"] = cfg.Queue.InitialBackoff
	}
	if includeZero || cfg.Queue.MaxBackoff != 0 {
		queue["max_backoff"] = cfg.Queue.MaxBackoff
	}
	if includeZero || cfg.Queue.ReapThreshold != 0 {
		queue["reap_threshold"] = cfg.Queue.ReapThreshold
	}
	if len(queue) > 0 {
		layer["queue"] = queue
	}
	delivery := map[string]any{}
	if includeZero || cfg.Delivery.MaxAttempts != 0 {
		delivery["max_attempts"] = cfg.Delivery.MaxAttempts
	}
	if includeZero || cfg.Delivery.Timeout != 0 {
		delivery["timeout"] = cfg.Delivery.Timeout
	}
	if includeZero || cfg.Delivery.InitialBackoff != 0 {
		delivery["initial_backoff"] = cfg.Delivery.InitialBackoff
	}
	if includeZero || cfg.Delivery.MaxBackoff != 0 {
		delivery["max_backoff"] = cfg.Delivery.MaxBackoff
	}
	if includeZero || cfg.Delivery.MaxResponseBytes != 0 {
		delivery["max_response_bytes"] = cfg.Delivery.MaxResponseBytes
	}
	if len(delivery) > 0 {
		layer["delivery"] = delivery
	}
	manualRetry := map[string]any{}
	if includeZero || cfg.ManualRetry.Window != 0 {
		manualRetry["window"] = cfg.ManualRetry.Window
	}
	if includeZero || cfg.ManualRetry.MaxPerWindow != 0 {
		manualRetry["max_per_window"] = cfg.ManualRetry.MaxPerWindow
	}
	if len(manualRetry) > 0 {
		layer["manual_retry"] = manualRetry
	}
	return layer
}
