// Package feedrank 是一个社交 feed 推荐引擎。
//
// 设计要点：
// - 双路径打分: ML（自研 DNN 排序模型）与启发式（冷启动）按互动门槛切换
// - Pipeline-first: 打分后的重排逻辑通过 Node 串联（多样性 → 规则 → 探索）
// - Labels-first: 每个条目携带 source 等 labels，支持 explain / 观测 / 策略驱动
// - 训练离线化: 词表重建、样本生成与模型训练由调度器周期执行，绝不阻塞请求
package feedrank

import "github.com/rushteam/feedrank/pipeline"

// 轻量 facade：便于用户直接 import "feedrank" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRank        = pipeline.KindRank
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)
