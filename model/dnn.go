// Package model 实现排序模型：对 (用户, 帖子) 向量对输出正向互动概率。
package model

import (
	"math"
	"math/rand"
)

// 网络结构：输入 393（196 用户 + 197 帖子），隐层 128→64→32，sigmoid 输出。
const (
	InputDim = 196 + 197 // 393
)

// DefaultLayers 是默认网络结构（含输入层与输出层）。
var DefaultLayers = []int{InputDim, 128, 64, 32, 1}

// Example 是一条训练样本：用户向量与帖子向量的拼接 + 二值标签。
// 标签 1 = 用户点赞过该帖子，0 = 采样负例。
type Example struct {
	Input []float64
	Label float64
}

// FeedDNN 是前馈全连接网络（小数据场景下的本地推理/训练实现）。
//
// 工程特征：
//   - 实时性：好（本地推理，无 RPC）
//   - 计算复杂度：中等（多层全连接）
//   - 可解释性：弱（黑盒模型）
//
// Weights[l][j][k] 是第 l 个权重层中神经元 j 对前一层输入 k 的权重；
// 权重层 l 连接 Layers[l] → Layers[l+1]。
type FeedDNN struct {
	Layers  []int         `json:"layers"`
	Weights [][][]float64 `json:"weights"`
	Biases  [][]float64   `json:"biases"`
}

// NewFeedDNN 创建一个新网络并做 He 初始化（ReLU 网络的标准初始化）。
// rng 为 nil 时使用不可复现的全局随机源。
func NewFeedDNN(layers []int, rng *rand.Rand) *FeedDNN {
	if len(layers) < 2 {
		layers = DefaultLayers
	}

	m := &FeedDNN{
		Layers:  layers,
		Weights: make([][][]float64, len(layers)-1),
		Biases:  make([][]float64, len(layers)-1),
	}

	normal := rand.NormFloat64
	if rng != nil {
		normal = rng.NormFloat64
	}

	for l := 0; l < len(layers)-1; l++ {
		fanIn := layers[l]
		out := layers[l+1]
		scale := math.Sqrt(2.0 / float64(fanIn))

		m.Weights[l] = make([][]float64, out)
		m.Biases[l] = make([]float64, out)
		for j := 0; j < out; j++ {
			m.Weights[l][j] = make([]float64, fanIn)
			for k := 0; k < fanIn; k++ {
				m.Weights[l][j][k] = normal() * scale
			}
		}
	}
	return m
}

func (m *FeedDNN) Name() string { return "feed_dnn" }

// Predict 对单个输入向量做前向推理，返回 sigmoid 概率。
func (m *FeedDNN) Predict(input []float64) float64 {
	acts := m.forward(input, nil)
	return acts[len(acts)-1][0]
}

// PredictBatch 对多个输入做推理，结果与输入顺序一致。
func (m *FeedDNN) PredictBatch(inputs [][]float64) []float64 {
	out := make([]float64, len(inputs))
	for i, input := range inputs {
		out[i] = m.Predict(input)
	}
	return out
}

// forward 前向传播，返回每层激活值（acts[0] 是对齐后的输入）。
// masks 非 nil 时对相应隐层应用 inverted dropout（仅训练期）。
func (m *FeedDNN) forward(input []float64, masks [][]float64) [][]float64 {
	acts := make([][]float64, len(m.Layers))

	// 输入维度对齐：截断或补零
	current := make([]float64, m.Layers[0])
	copy(current, input)
	acts[0] = current

	for l := 0; l < len(m.Weights); l++ {
		out := m.Layers[l+1]
		next := make([]float64, out)
		last := l == len(m.Weights)-1

		for j := 0; j < out; j++ {
			sum := m.Biases[l][j]
			w := m.Weights[l][j]
			for k := range current {
				sum += w[k] * current[k]
			}
			if last {
				next[j] = sigmoid(sum)
			} else {
				next[j] = relu(sum)
			}
		}

		if !last && masks != nil && l < len(masks) && masks[l] != nil {
			for j := range next {
				next[j] *= masks[l][j]
			}
		}

		current = next
		acts[l+1] = current
	}
	return acts
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
