package trainer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultInterval 是训练流水线的默认调度周期。
const DefaultInterval = 6 * time.Hour

// Scheduler 周期性触发训练流水线，与请求服务完全解耦。
//
// 并发控制：
//   - 全系统同一时刻最多一次训练运行（并发运行会竞争模型持久化）
//   - 通过 singleflight 串行化：定时触发与外部 Trigger 共享同一运行
//   - 某一轮失败只记录日志并等待下一轮，绝不影响服务路径
type Scheduler struct {
	pipeline *Pipeline
	interval time.Duration
	log      zerolog.Logger

	group singleflight.Group
	stop  chan struct{}
	done  chan struct{}
}

func NewScheduler(pipeline *Pipeline, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		pipeline: pipeline,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动调度循环（非阻塞）。ctx 取消或 Stop 调用后退出。
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop 停止调度循环并等待退出。进行中的训练运行会自然结束。
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// Trigger 立即触发一次训练运行（任务队列/管理接口的入口）。
// 已有运行进行中时不会并发启动第二次，而是共享其结果。
func (s *Scheduler) Trigger(ctx context.Context) (*Result, error) {
	v, err, shared := s.group.Do("training", func() (interface{}, error) {
		return s.pipeline.Run(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Debug().Msg("trainer: trigger coalesced with running pipeline")
	}
	return v.(*Result), nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := s.Trigger(ctx)
			if err != nil {
				// 失败降级为跳过本轮：上一个成功的模型继续服务
				s.log.Error().Err(err).Msg("trainer: scheduled run failed")
				continue
			}
			if !result.Success {
				s.log.Warn().Int("examples", result.ExampleCount).Str("reason", result.Reason).
					Msg("trainer: scheduled run skipped")
			}
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
