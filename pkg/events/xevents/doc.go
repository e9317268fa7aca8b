// Package xevents 实现进程内/跨进程事件总线：addListener/removeListener/
// listenOnce/subscribe/subscribeOnce/asPromise/dispatch。
//
// # 投递模型
//
// 单个监听器收到的事件保持 dispatch 顺序；不同监听器之间互不保证顺序，
// 彼此并发投递，一个监听器的失败或 schema 校验失败不影响其他监听器。
//
// # Schema 校验
//
// Bus 可选携带一个 EventMapSchema；dispatch 时校验一次（失败直接拒绝
// 本次派发），投递前对每个监听器再校验一次（失败不中断监听器链，而是
// 转交 UncaughtRejectionHandler）。
//
// # 适配器
//
//   - NewMemoryBus：进程内，基于 mutex 保护的 map[string][]*subscription。
//   - NewRedisBus：redis.UniversalClient Pub/Sub，多进程共享同一事件流。
package xevents
