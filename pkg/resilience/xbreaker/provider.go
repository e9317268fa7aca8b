package xbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Record 是持久化策略引擎维护的熔断器状态，复用 gobreaker 的 [State] 术语。
type Record struct {
	State         State
	Metrics       Metrics
	OpenExpiresAt time.Time
}

// RecordStore 抽象了 Record 的存储读写，由各后端适配器实现。
type RecordStore interface {
	Load(ctx context.Context, key string) (Record, bool, error)
	Save(ctx context.Context, key string, rec Record) error
}

// TxRunner 在一个原子边界内执行 fn，边界语义由具体后端决定
// （内存用全局互斥锁、SQL 用可串行化事务、Mongo 用会话事务、Redis 用 WATCH 乐观锁）。
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Adapter 把任意 RecordStore 包装成原子的"读-判定-写"操作，
// 与 xdlock.DatabaseAdapterBridge 是同一种组合方式。
type Adapter struct {
	kind  string
	store RecordStore
	runTx TxRunner
}

// NewAdapter 组装一个 Adapter。kind 用于日志与事件负载标识后端种类。
func NewAdapter(kind string, store RecordStore, runTx TxRunner) *Adapter {
	return &Adapter{kind: kind, store: store, runTx: runTx}
}

// Transition 在原子边界内加载当前记录、应用 mutate、写回结果。
func (a *Adapter) Transition(ctx context.Context, key string, mutate func(rec Record, found bool) (Record, error)) (Record, error) {
	var result Record
	err := a.runTx(ctx, func(ctx context.Context) error {
		rec, found, err := a.store.Load(ctx, key)
		if err != nil {
			return err
		}
		next, err := mutate(rec, found)
		if err != nil {
			return err
		}
		result = next
		return a.store.Save(ctx, key, next)
	})
	if err != nil {
		return Record{}, err
	}
	return result, nil
}

// 事件名。状态迁移之外，每次调用的记账分类也会作为事件派发，
// 便于外部观测熔断决策的输入流。
const (
	EventStateTransitioned = "STATE_TRANSITIONED"
	EventTrackedSuccess    = "TRACKED_SUCCESS"
	EventTrackedFailure    = "TRACKED_FAILURE"
	EventUntrackedFailure  = "UNTRACKED_FAILURE"
	EventTrackedSlowCall   = "TRACKED_SLOW_CALL"
	EventReseted           = "RESETED"
	EventIsolated          = "ISOLATED"
)

// SlowCallTrigger 控制慢调用与错误如何参与失败记账。
type SlowCallTrigger int

const (
	// TriggerOnlyError 仅错误计为失败，慢调用不记账。
	TriggerOnlyError SlowCallTrigger = iota
	// TriggerOnlySlowCall 仅慢调用计为失败，错误只派发 UNTRACKED_FAILURE。
	TriggerOnlySlowCall
	// TriggerBoth 错误与慢调用都计为失败。
	TriggerBoth
)

// Transition 描述一次状态迁移的前后值，随 STATE_TRANSITIONED 事件一起派发。
type Transition struct {
	Key  string
	From State
	To   State
}

// EventPublisher 是熔断状态机事件的投递面，xdlock/xevents 共用同一形状。
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any)
}

var (
	// ErrCircuitOpen 熔断器处于 Open 态，调用被直接拒绝。
	ErrCircuitOpen = errors.New("xbreaker: circuit is open")

	// ErrNilPolicy 构造 Provider 时未提供 Policy。
	ErrNilPolicy = errors.New("xbreaker: policy cannot be nil")

	// ErrNilAdapter 构造 Provider 时未提供 Adapter。
	ErrNilAdapter = errors.New("xbreaker: adapter cannot be nil")
)

// Provider 是持久化熔断器的工厂，runOrFail 是其唯一的调用入口。
//
// 与本包 [Breaker]（gobreaker 的进程内封装）不同，Provider 把决策状态
// 委托给 Adapter，使熔断状态可以在多个进程间共享（sql/redis/mongo 后端），
// 代价是每次调用多一次存储往返。单进程场景应优先使用 [Breaker]。
type Provider struct {
	adapter       *Adapter
	policy        Policy
	openTimeout   time.Duration
	slowCallTime  time.Duration
	trigger       SlowCallTrigger
	asyncTracking bool
	errorPolicy   func(error) bool
	bus           EventPublisher
	logger        *slog.Logger
}

// Option 配置 Provider。
type Option func(*Provider)

// WithOpenTimeout 设置 Open 态的冷却时长，到期后下一次调用转入 HalfOpen 探测。
func WithOpenTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.openTimeout = d
		}
	}
}

// WithSlowCallTime 设置慢调用阈值；超过此耗时的调用按 trigger 的分类规则记账。
func WithSlowCallTime(d time.Duration) Option {
	return func(p *Provider) { p.slowCallTime = d }
}

// WithSlowCallTrigger 设置慢调用/错误参与失败记账的组合方式，默认 TriggerBoth。
func WithSlowCallTrigger(t SlowCallTrigger) Option {
	return func(p *Provider) { p.trigger = t }
}

// WithAsyncTracking 把调用结果记账改为 fire-and-forget 异步执行。
//
// 开启后 runOrFail 不再等待存储往返即可返回，代价是状态迁移在一个冷却窗口
// 内只保证最终一致——"一旦 Open 则不再放行"的单调性被削弱。默认关闭。
func WithAsyncTracking(enabled bool) Option {
	return func(p *Provider) { p.asyncTracking = enabled }
}

// WithErrorPolicy 设置错误分类函数：返回 true 表示该错误应计为失败，
// 返回 false 表示该错误是预期内的业务错误，不应影响熔断决策。
// 默认所有非 nil error 都计为失败。
func WithErrorPolicy(fn func(error) bool) Option {
	return func(p *Provider) {
		if fn != nil {
			p.errorPolicy = fn
		}
	}
}

// WithEventPublisher 设置事件发布目标。
func WithEventPublisher(bus EventPublisher) Option {
	return func(p *Provider) { p.bus = bus }
}

// WithProviderLogger 设置日志记录器，默认 slog.Default()。
func WithProviderLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProvider 创建持久化熔断 Provider。
func NewProvider(adapter *Adapter, policy Policy, opts ...Option) (*Provider, error) {
	if adapter == nil {
		return nil, ErrNilAdapter
	}
	if policy == nil {
		return nil, ErrNilPolicy
	}
	p := &Provider{
		adapter:     adapter,
		policy:      policy,
		openTimeout: 30 * time.Second,
		trigger:     TriggerBoth,
		errorPolicy: func(err error) bool { return err != nil },
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// runOrFail 在熔断状态机的保护下执行 fn。
//
// Open 态且冷却未到期时直接返回 [ErrCircuitOpen]，不调用 fn。
// 调用完成后根据 errorPolicy/slowCallTime/trigger 的分类结果记账，并在状态
// 发生迁移时派发 STATE_TRANSITIONED 事件。
//
// 分类规则：
//   - 错误且 errorPolicy 判定不追踪：派发 UNTRACKED_FAILURE，原样抛出，不记账。
//   - 错误且 trigger 含错误维度：按失败记账，派发 TRACKED_FAILURE。
//   - 耗时达到 slowCallTime 且 trigger 含慢调用维度：按失败记账，
//     派发 TRACKED_SLOW_CALL；与 TRACKED_FAILURE 可同时出现（TriggerBoth）。
//   - 其余情况按成功记账，派发 TRACKED_SUCCESS。
func (p *Provider) runOrFail(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	permitted, transitioned, err := p.before(ctx, key)
	if err != nil {
		return fmt.Errorf("xbreaker: before-call transition: %w", err)
	}
	if transitioned != nil {
		p.dispatch(ctx, *transitioned)
	}
	if !permitted {
		return ErrCircuitOpen
	}

	start := time.Now()
	callErr := fn(ctx)
	elapsed := time.Since(start)

	trackErrors := p.trigger == TriggerOnlyError || p.trigger == TriggerBoth
	trackSlow := p.trigger == TriggerOnlySlowCall || p.trigger == TriggerBoth
	slow := p.slowCallTime > 0 && elapsed >= p.slowCallTime

	var failed bool
	switch {
	case callErr != nil && !p.errorPolicy(callErr):
		p.publish(ctx, EventUntrackedFailure, key)
		return callErr
	case callErr != nil && trackErrors:
		failed = true
		p.publish(ctx, EventTrackedFailure, key)
		if slow && trackSlow {
			p.publish(ctx, EventTrackedSlowCall, key)
		}
	case slow && trackSlow:
		failed = true
		p.publish(ctx, EventTrackedSlowCall, key)
	default:
		p.publish(ctx, EventTrackedSuccess, key)
	}

	p.track(ctx, key, failed)
	return callErr
}

// track 记账一次调用结果；asyncTracking 开启时在独立 goroutine 中完成，
// 调用方不等待存储往返。
func (p *Provider) track(ctx context.Context, key string, failed bool) {
	record := func(ctx context.Context) {
		transitioned, err := p.after(ctx, key, failed)
		if err != nil {
			p.logger.Warn("xbreaker: after-call transition failed", "key", key, "error", err)
		}
		if transitioned != nil {
			p.dispatch(ctx, *transitioned)
		}
	}
	if p.asyncTracking {
		go record(context.WithoutCancel(ctx))
		return
	}
	record(ctx)
}

// Reset 强制回到 Closed 态并清空统计，派发 RESETED 事件。
func (p *Provider) Reset(ctx context.Context, key string) error {
	var from State
	_, err := p.adapter.Transition(ctx, key, func(rec Record, found bool) (Record, error) {
		from = rec.State
		return Record{State: StateClosed, Metrics: p.policy.initialMetrics()}, nil
	})
	if err != nil {
		return fmt.Errorf("xbreaker: reset %q: %w", key, err)
	}
	p.publish(ctx, EventReseted, key)
	if from != StateClosed {
		p.dispatch(ctx, Transition{Key: key, From: from, To: StateClosed})
	}
	return nil
}

// Isolate 强制进入 Open 态并把冷却期推到远端，派发 ISOLATED 事件。
// 隔离只能通过 Reset 解除，不会因冷却到期自动半开。
func (p *Provider) Isolate(ctx context.Context, key string) error {
	var from State
	_, err := p.adapter.Transition(ctx, key, func(rec Record, found bool) (Record, error) {
		from = rec.State
		if !found {
			rec = Record{Metrics: p.policy.initialMetrics()}
		}
		rec.State = StateOpen
		rec.OpenExpiresAt = isolatedUntil
		return rec, nil
	})
	if err != nil {
		return fmt.Errorf("xbreaker: isolate %q: %w", key, err)
	}
	p.publish(ctx, EventIsolated, key)
	if from != StateOpen {
		p.dispatch(ctx, Transition{Key: key, From: from, To: StateOpen})
	}
	return nil
}

// isolatedUntil 是 Isolate 使用的哨兵冷却时刻，远到等同于"永不自动半开"。
var isolatedUntil = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// before 决定本次调用是否被放行，必要时把 Open 态翻转为 HalfOpen。
func (p *Provider) before(ctx context.Context, key string) (permitted bool, transition *Transition, err error) {
	var halfOpened bool
	rec, txErr := p.adapter.Transition(ctx, key, func(rec Record, found bool) (Record, error) {
		halfOpened = false
		if !found {
			return Record{State: StateClosed, Metrics: p.policy.initialMetrics()}, nil
		}
		if rec.State == StateOpen && time.Now().After(rec.OpenExpiresAt) {
			rec.State = StateHalfOpen
			rec.Metrics = p.policy.initialMetrics()
			halfOpened = true
		}
		return rec, nil
	})
	if txErr != nil {
		return false, nil, txErr
	}

	if halfOpened {
		transition = &Transition{Key: key, From: StateOpen, To: StateHalfOpen}
	}
	if rec.State == StateOpen {
		return false, transition, nil
	}
	return true, transition, nil
}

// after 记账一次调用结果，按策略判定是否需要迁移状态。
func (p *Provider) after(ctx context.Context, key string, failed bool) (*Transition, error) {
	var from, to State
	var changed bool

	rec, err := p.adapter.Transition(ctx, key, func(rec Record, found bool) (Record, error) {
		if !found {
			rec = Record{State: StateClosed, Metrics: p.policy.initialMetrics()}
		}
		from = rec.State

		if failed {
			rec.Metrics = p.policy.trackFailure(rec.Metrics)
		} else {
			rec.Metrics = p.policy.trackSuccess(rec.Metrics)
		}

		switch rec.State {
		case StateClosed:
			if p.policy.whenClosed(rec.Metrics) {
				rec.State = StateOpen
				rec.OpenExpiresAt = time.Now().Add(p.openTimeout)
			}
		case StateHalfOpen:
			if failed {
				rec.State = StateOpen
				rec.OpenExpiresAt = time.Now().Add(p.openTimeout)
			} else if p.policy.whenHalfOpened(rec.Metrics) {
				rec.State = StateClosed
				rec.Metrics = p.policy.initialMetrics()
			}
		}

		to = rec.State
		changed = from != to
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	_ = rec

	if !changed {
		return nil, nil
	}
	return &Transition{Key: key, From: from, To: to}, nil
}

func (p *Provider) dispatch(ctx context.Context, t Transition) {
	p.logger.Debug("xbreaker: state transitioned", "key", t.Key, "from", t.From, "to", t.To)
	if p.bus != nil {
		p.bus.Publish(ctx, EventStateTransitioned, t)
	}
}

// publish 派发记账分类事件，负载仅携带 key。
func (p *Provider) publish(ctx context.Context, event, key string) {
	if p.bus != nil {
		p.bus.Publish(ctx, event, struct{ Key string }{Key: key})
	}
}

// Run executes fn under the breaker's protection and returns its error,
// or ErrCircuitOpen if the circuit is currently open.
func (p *Provider) Run(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return p.runOrFail(ctx, key, fn)
}

// State returns the current state for key without side effects.
func (p *Provider) State(ctx context.Context, key string) (State, error) {
	rec, found, err := p.adapter.store.Load(ctx, key)
	if err != nil {
		return StateClosed, err
	}
	if !found {
		return StateClosed, nil
	}
	return rec.State, nil
}
