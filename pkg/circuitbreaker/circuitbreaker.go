package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// State 表示熔断器状态
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed   // 关闭：正常状态，允许请求通过
	StateOpen     = gobreaker.StateOpen     // 打开：熔断状态，直接拒绝请求
	StateHalfOpen = gobreaker.StateHalfOpen // 半开：尝试恢复，允许少量请求通过
)

// Config 熔断器配置
type Config struct {
	// 名称，用于日志
	Name string
	// 失败阈值：连续失败多少次后打开熔断器
	FailureThreshold int
	// 超时时间：打开状态持续多久后进入半开状态
	Timeout time.Duration
	// 半开状态下的最大请求数
	HalfOpenMaxRequests int
	// 判定为失败的错误；为 nil 时所有非 nil 错误都算失败
	IsFailure func(err error) bool
}

// DefaultConfig 返回默认配置
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		FailureThreshold:    5,                // 连续失败5次后打开
		Timeout:             30 * time.Second, // 打开状态持续30秒
		HalfOpenMaxRequests: 3,                // 半开状态下最多允许3个请求
	}
}

// CircuitBreaker 熔断器，底层使用 gobreaker
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker 创建新的熔断器
func NewCircuitBreaker(config Config, logger *zap.Logger) *CircuitBreaker {
	threshold := uint32(config.FailureThreshold)
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: uint32(config.HalfOpenMaxRequests),
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("Circuit breaker state changed",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			}
		},
	}
	if config.IsFailure != nil {
		isFailure := config.IsFailure
		settings.IsSuccessful = func(err error) bool {
			return err == nil || !isFailure(err)
		}
	}

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute 执行函数，带熔断保护
func (c *CircuitBreaker) Execute(fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitBreakerOpen
	}
	return err
}

// GetState 获取当前状态（线程安全）
func (c *CircuitBreaker) GetState() State {
	return c.cb.State()
}

// 错误定义
var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)
