package xsemaphore

import "errors"

// 预定义错误。使用 errors.Is 进行错误匹配。
var (
	// ErrNilClient 客户端为空。
	ErrNilClient = errors.New("xsemaphore: client is nil")

	// ErrNilContext 上下文为空。
	ErrNilContext = errors.New("xsemaphore: context must not be nil")

	// ErrEmptyKey 信号量 key 为空。
	ErrEmptyKey = errors.New("xsemaphore: key must not be empty")

	// ErrEmptySlotID 槽位标识为空。
	ErrEmptySlotID = errors.New("xsemaphore: slot id must not be empty")

	// ErrInvalidLimit 槽位上限必须为正数。
	ErrInvalidLimit = errors.New("xsemaphore: limit must be positive")

	// ErrSlotNotHeld 槽位未被该 slotID 持有（不存在、已过期或已被释放）。
	ErrSlotNotHeld = errors.New("xsemaphore: slot not held")

	// ErrSemaphoreFull 非阻塞获取失败：存活槽位已达上限。
	ErrSemaphoreFull = errors.New("xsemaphore: all slots are taken")

	// ErrAcquireFailed 阻塞获取重试耗尽仍未获得槽位。
	ErrAcquireFailed = errors.New("xsemaphore: failed to acquire slot")
)
