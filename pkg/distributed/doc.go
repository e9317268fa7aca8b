// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xdlock: 分布式锁，支持内存、Redis、SQL、Mongo、etcd 后端
//   - xsemaphore: 分布式信号量，支持内存、Redis、SQL 后端
//
// 设计原则：
//   - 提供统一的锁接口，支持多种后端实现
//   - 支持锁续期和优雅释放
//   - 内置健康检查和指标收集
package distributed
