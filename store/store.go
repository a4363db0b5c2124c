// Package store 提供 core.Store 的缓存后端实现。
//
// 注意：此包只包含实现，接口定义在 core 包。
// 缓存是纯加速器：调用方对任何 Store 错误都应降级为重新计算。
//
// 示例：
//
//	var cache core.Store = store.NewMemoryStore()
package store
