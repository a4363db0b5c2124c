package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// persistedModel 是模型的持久化格式：网络参数 + 训练元数据。
type persistedModel struct {
	Layers       []int         `json:"layers"`
	Weights      [][][]float64 `json:"weights"`
	Biases       [][]float64   `json:"biases"`
	TrainedAt    time.Time     `json:"trained_at"`
	ExampleCount int           `json:"example_count"`
}

// SaveFeedDNN 把模型参数与元数据写入 path。
// 先写临时文件再 rename，训练中途失败不会留下半成品覆盖旧模型。
func SaveFeedDNN(path string, m *FeedDNN, trainedAt time.Time, exampleCount int) error {
	data, err := json.Marshal(persistedModel{
		Layers:       m.Layers,
		Weights:      m.Weights,
		Biases:       m.Biases,
		TrainedAt:    trainedAt,
		ExampleCount: exampleCount,
	})
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace model: %w", err)
	}
	return nil
}

// LoadFeedDNN 从 path 加载模型；文件不存在返回 os.ErrNotExist。
func LoadFeedDNN(path string) (*FeedDNN, time.Time, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, 0, err
	}

	var raw persistedModel
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, time.Time{}, 0, fmt.Errorf("parse model: %w", err)
	}
	if len(raw.Layers) < 2 || len(raw.Weights) != len(raw.Layers)-1 {
		return nil, time.Time{}, 0, fmt.Errorf("model file corrupt: %s", path)
	}

	m := &FeedDNN{
		Layers:  raw.Layers,
		Weights: raw.Weights,
		Biases:  raw.Biases,
	}
	return m, raw.TrainedAt, raw.ExampleCount, nil
}
