package dispatch

import (
	"fmt"
	"reflect"

	dispatchcommand "github.com/goliatone/go-dispatch/command"
	"github.com/goliatone/go-dispatch/core"
	dispatchquery "github.com/goliatone/go-dispatch/query"
)

type CommandQueryService interface {
	dispatchcommand.MutatingService
	dispatchquery.JobReader
	dispatchquery.SubscriptionReader
	dispatchquery.OutboxReader
	dispatchquery.DeliveryAttemptReader
}

type Commands struct {
	PublishEvent             *dispatchcommand.PublishEventCommand
	EnqueueJob               *dispatchcommand.EnqueueJobCommand
	CancelJob                *dispatchcommand.CancelJobCommand
	ReapStuckJobs            *dispatchcommand.ReapStuckJobsCommand
	CreateSubscription       *dispatchcommand.CreateSubscriptionCommand
	UpdateSubscription       *dispatchcommand.UpdateSubscriptionCommand
	RotateSubscriptionSecret *dispatchcommand.RotateSubscriptionSecretCommand
	RetryDeadLetter          *dispatchcommand.RetryDeadLetterCommand
	DrainTenant              *dispatchcommand.DrainTenantCommand
}

type Queries struct {
	GetJob                  *dispatchquery.GetJobQuery
	GetSubscription         *dispatchquery.GetSubscriptionQuery
	ListSubscriptions       *dispatchquery.ListSubscriptionsQuery
	ListActiveSubscriptions *dispatchquery.ListActiveSubscriptionsQuery
	GetOutboxEntry          *dispatchquery.GetOutboxEntryQuery
	ListDeadLetters         *dispatchquery.ListDeadLettersQuery
	ListDeliveryAttempts    *dispatchquery.ListDeliveryAttemptsQuery
	ListActivity            *dispatchquery.ListActivityQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activeSubscriptionReader dispatchquery.ActiveSubscriptionReader
	deadLetterReader         dispatchquery.DeadLetterReader
	activityReader           dispatchquery.ActivityReader
}

func WithActiveSubscriptionReader(reader dispatchquery.ActiveSubscriptionReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activeSubscriptionReader = reader
	}
}

func WithDeadLetterReader(reader dispatchquery.DeadLetterReader) FacadeOption {
	return func(options *facadeOptions) {
		options.deadLetterReader = reader
	}
}

func WithActivityReader(reader dispatchquery.ActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("dispatch: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	deps := resolveDependencies(service)

	activeReader := cfg.activeSubscriptionReader
	if activeReader == nil {
		activeReader = deps.SubscriptionStore
	}
	deadLetterReader := cfg.deadLetterReader
	if deadLetterReader == nil {
		deadLetterReader = resolveFactoryReader[dispatchquery.DeadLetterReader](deps.RepositoryFactory, "OutboxQueries")
	}
	activityReader := cfg.activityReader
	if activityReader == nil {
		activityReader = resolveFactoryReader[dispatchquery.ActivityReader](deps.RepositoryFactory, "ActivityQueries")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		PublishEvent:             dispatchcommand.NewPublishEventCommand(service),
		EnqueueJob:               dispatchcommand.NewEnqueueJobCommand(service),
		CancelJob:                dispatchcommand.NewCancelJobCommand(service),
		ReapStuckJobs:            dispatchcommand.NewReapStuckJobsCommand(service),
		CreateSubscription:       dispatchcommand.NewCreateSubscriptionCommand(service),
		UpdateSubscription:       dispatchcommand.NewUpdateSubscriptionCommand(service),
		RotateSubscriptionSecret: dispatchcommand.NewRotateSubscriptionSecretCommand(service),
		RetryDeadLetter:          dispatchcommand.NewRetryDeadLetterCommand(service),
		DrainTenant:              dispatchcommand.NewDrainTenantCommand(service),
	}
	facade.queries = Queries{
		GetJob:                  dispatchquery.NewGetJobQuery(service),
		GetSubscription:         dispatchquery.NewGetSubscriptionQuery(service),
		ListSubscriptions:       dispatchquery.NewListSubscriptionsQuery(service),
		ListActiveSubscriptions: dispatchquery.NewListActiveSubscriptionsQuery(activeReader),
		GetOutboxEntry:          dispatchquery.NewGetOutboxEntryQuery(service),
		ListDeadLetters:         dispatchquery.NewListDeadLettersQuery(deadLetterReader),
		ListDeliveryAttempts:    dispatchquery.NewListDeliveryAttemptsQuery(service),
		ListActivity:            dispatchquery.NewListActivityQuery(activityReader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func resolveDependencies(service CommandQueryService) core.ServiceDependencies {
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return core.ServiceDependencies{}
	}
	return provider.Dependencies()
}

// resolveFactoryReader probes the repository factory for a zero-argument
// accessor returning a concrete read-side store. The factory stays typed as
// `any` on the service, so the probe goes through reflection.
func resolveFactoryReader[T any](factory any, methodName string) T {
	var zero T
	if factory == nil {
		return zero
	}
	factoryValue := reflect.ValueOf(factory)
	if !factoryValue.IsValid() {
		return zero
	}
	if factoryValue.Kind() == reflect.Ptr && factoryValue.IsNil() {
		return zero
	}
	method := factoryValue.MethodByName(methodName)
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
		return zero
	}
	results, ok := safeReflectCall(method)
	if !ok || len(results) != 1 {
		return zero
	}
	candidate := results[0]
	if !candidate.IsValid() {
		return zero
	}
	if candidate.Kind() == reflect.Ptr && candidate.IsNil() {
		return zero
	}
	reader, ok := candidate.Interface().(T)
	if !ok {
		return zero
	}
	return reader
}

func safeReflectCall(method reflect.Value) (_ []reflect.Value, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return method.Call(nil), true
}
