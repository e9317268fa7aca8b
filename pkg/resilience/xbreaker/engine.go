package xbreaker

import (
	"time"

	"github.com/coordkit/coordkit/pkg/xtimespan"
)

// Metrics 记录策略决策所需的调用统计。
//
// 与 gobreaker.Counts 含义相同，但独立维护，因为持久化策略引擎
// （memory/sql/redis/mongo 适配器）不经过 gobreaker.CircuitBreaker 本身，
// 只复用它的 State/Counts 术语。
type Metrics struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
	WindowStart          time.Time
}

// Policy 定义熔断决策引擎。
//
// 与 [TripPolicy] 不同：TripPolicy 只回答"是否应该跳闸"，而 Policy 拥有
// 完整的指标生命周期（初始化、成功/失败记账、闭合态跳闸判定、半开态恢复判定），
// 是持久化适配器（sql/redis/mongo）在无法持有 gobreaker 实例时唯一需要的决策面。
type Policy interface {
	// initialMetrics 返回一条新记录应使用的初始统计值。
	initialMetrics() Metrics

	// trackSuccess 记录一次成功调用后的新指标。
	trackSuccess(m Metrics) Metrics

	// trackFailure 记录一次失败调用后的新指标。
	trackFailure(m Metrics) Metrics

	// whenClosed 在 Closed 态下判断是否应当跳闸至 Open。
	whenClosed(m Metrics) bool

	// whenHalfOpened 在 HalfOpen 态下判断探测调用是否足以回到 Closed。
	// 返回 false 且已有失败记账时，调用方应跳回 Open。
	whenHalfOpened(m Metrics) bool

	// isEqual 比较两个策略配置是否等价，用于适配器复用缓存的策略实例。
	isEqual(other Policy) bool
}

// CountBasedPolicy 基于滑动调用计数窗口的策略：当失败率超过阈值且样本量
// 达到 minimumThroughput 时跳闸；半开态下 permittedCalls 次探测全部成功
// 才闭合。
type CountBasedPolicy struct {
	failureRateThreshold float64
	minimumThroughput    uint32
	permittedCalls       uint32
	slidingWindowSize     uint32
}

// CountBasedPolicyOption 配置 CountBasedPolicy。
type CountBasedPolicyOption func(*CountBasedPolicy)

// WithFailureRateThreshold 设置触发跳闸的失败率 (0.0-1.0)。
func WithFailureRateThreshold(ratio float64) CountBasedPolicyOption {
	return func(p *CountBasedPolicy) {
		if ratio < 0 {
			ratio = 0
		}
		if ratio > 1 {
			ratio = 1
		}
		p.failureRateThreshold = ratio
	}
}

// WithMinimumThroughput 设置计算失败率前所需的最小样本量。
func WithMinimumThroughput(n uint32) CountBasedPolicyOption {
	return func(p *CountBasedPolicy) { p.minimumThroughput = n }
}

// WithPermittedCallsInHalfOpen 设置半开态下允许通过的探测调用数。
func WithPermittedCallsInHalfOpen(n uint32) CountBasedPolicyOption {
	return func(p *CountBasedPolicy) {
		if n == 0 {
			n = 1
		}
		p.permittedCalls = n
	}
}

// NewCountBasedPolicy 创建计数窗口策略，默认 50% 失败率、最小样本 10、
// 半开探测 3 次。
func NewCountBasedPolicy(opts ...CountBasedPolicyOption) *CountBasedPolicy {
	p := &CountBasedPolicy{
		failureRateThreshold: 0.5,
		minimumThroughput:    10,
		permittedCalls:       3,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *CountBasedPolicy) initialMetrics() Metrics {
	return Metrics{WindowStart: time.Now()}
}

func (p *CountBasedPolicy) trackSuccess(m Metrics) Metrics {
	m.Requests++
	m.TotalSuccesses++
	m.ConsecutiveSuccesses++
	m.ConsecutiveFailures = 0
	return m
}

func (p *CountBasedPolicy) trackFailure(m Metrics) Metrics {
	m.Requests++
	m.TotalFailures++
	m.ConsecutiveFailures++
	m.ConsecutiveSuccesses = 0
	return m
}

func (p *CountBasedPolicy) whenClosed(m Metrics) bool {
	if m.Requests < p.minimumThroughput {
		return false
	}
	rate := float64(m.TotalFailures) / float64(m.Requests)
	return rate >= p.failureRateThreshold
}

func (p *CountBasedPolicy) whenHalfOpened(m Metrics) bool {
	if m.ConsecutiveFailures > 0 {
		return false
	}
	return m.ConsecutiveSuccesses >= p.permittedCalls
}

func (p *CountBasedPolicy) isEqual(other Policy) bool {
	o, ok := other.(*CountBasedPolicy)
	if !ok {
		return false
	}
	return o.failureRateThreshold == p.failureRateThreshold &&
		o.minimumThroughput == p.minimumThroughput &&
		o.permittedCalls == p.permittedCalls
}

var _ Policy = (*CountBasedPolicy)(nil)

// TimeBasedPolicy 基于滚动时间窗口的策略：窗口内失败率超过阈值即跳闸；
// 窗口每过 windowSize 自动重置统计，避免陈旧失败长期压在计数里。
type TimeBasedPolicy struct {
	failureRateThreshold float64
	minimumThroughput    uint32
	permittedCalls       uint32
	windowSize           time.Duration
}

// TimeBasedPolicyOption 配置 TimeBasedPolicy。
type TimeBasedPolicyOption func(*TimeBasedPolicy)

// WithTimeBasedFailureRateThreshold 设置触发跳闸的失败率 (0.0-1.0)。
func WithTimeBasedFailureRateThreshold(ratio float64) TimeBasedPolicyOption {
	return func(p *TimeBasedPolicy) {
		if ratio < 0 {
			ratio = 0
		}
		if ratio > 1 {
			ratio = 1
		}
		p.failureRateThreshold = ratio
	}
}

// WithTimeBasedMinimumThroughput 设置窗口内计算失败率所需的最小样本量。
func WithTimeBasedMinimumThroughput(n uint32) TimeBasedPolicyOption {
	return func(p *TimeBasedPolicy) { p.minimumThroughput = n }
}

// WithWindowSize 设置滚动窗口长度。
func WithWindowSize(d time.Duration) TimeBasedPolicyOption {
	return func(p *TimeBasedPolicy) {
		if d > 0 {
			p.windowSize = d
		}
	}
}

// WithTimeBasedPermittedCalls 设置半开态允许通过的探测调用数。
func WithTimeBasedPermittedCalls(n uint32) TimeBasedPolicyOption {
	return func(p *TimeBasedPolicy) {
		if n == 0 {
			n = 1
		}
		p.permittedCalls = n
	}
}

// NewTimeBasedPolicy 创建滚动时间窗口策略，默认窗口 60 秒、50% 失败率、
// 最小样本 10、半开探测 3 次。
func NewTimeBasedPolicy(opts ...TimeBasedPolicyOption) *TimeBasedPolicy {
	p := &TimeBasedPolicy{
		failureRateThreshold: 0.5,
		minimumThroughput:    10,
		permittedCalls:       3,
		windowSize:           60 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *TimeBasedPolicy) initialMetrics() Metrics {
	return Metrics{WindowStart: time.Now()}
}

// rollWindow 在窗口到期时重置统计，保留开窗时间戳的单调推进。
// 窗口边界用 xtimespan.TimeSpan 表达：[WindowStart, WindowStart+windowSize)，
// 当前时间不再落在该区间内即视为窗口到期。
func (p *TimeBasedPolicy) rollWindow(m Metrics) Metrics {
	if m.WindowStart.IsZero() {
		m.WindowStart = time.Now()
		return m
	}
	window := xtimespan.Since(m.WindowStart, p.windowSize)
	if !window.Contains(time.Now()) {
		return Metrics{WindowStart: time.Now()}
	}
	return m
}

func (p *TimeBasedPolicy) trackSuccess(m Metrics) Metrics {
	m = p.rollWindow(m)
	m.Requests++
	m.TotalSuccesses++
	m.ConsecutiveSuccesses++
	m.ConsecutiveFailures = 0
	return m
}

func (p *TimeBasedPolicy) trackFailure(m Metrics) Metrics {
	m = p.rollWindow(m)
	m.Requests++
	m.TotalFailures++
	m.ConsecutiveFailures++
	m.ConsecutiveSuccesses = 0
	return m
}

func (p *TimeBasedPolicy) whenClosed(m Metrics) bool {
	if m.Requests < p.minimumThroughput {
		return false
	}
	rate := float64(m.TotalFailures) / float64(m.Requests)
	return rate >= p.failureRateThreshold
}

func (p *TimeBasedPolicy) whenHalfOpened(m Metrics) bool {
	if m.ConsecutiveFailures > 0 {
		return false
	}
	return m.ConsecutiveSuccesses >= p.permittedCalls
}

func (p *TimeBasedPolicy) isEqual(other Policy) bool {
	o, ok := other.(*TimeBasedPolicy)
	if !ok {
		return false
	}
	return o.failureRateThreshold == p.failureRateThreshold &&
		o.minimumThroughput == p.minimumThroughput &&
		o.permittedCalls == p.permittedCalls &&
		o.windowSize == p.windowSize
}

var _ Policy = (*TimeBasedPolicy)(nil)
