package model

import (
	"math"
	"math/rand"

	"github.com/rushteam/feedrank/core"
)

// ErrNoExamples 表示没有训练样本。
var ErrNoExamples = core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidInput, "model: no training examples")

// 训练默认超参：小数据场景，固定预算，不追求收敛精度。
const (
	DefaultLearningRate    = 0.01
	DefaultEpochs          = 10
	DefaultBatchSize       = 32
	DefaultValidationSplit = 0.2
)

// DefaultDropoutRates 是前两个隐层后的 dropout 比例（对抗小数据过拟合）。
var DefaultDropoutRates = []float64{0.3, 0.2}

// TrainOptions 是训练超参。零值字段取默认值。
type TrainOptions struct {
	LearningRate    float64
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	DropoutRates    []float64

	// Seed 控制样本打散与 dropout 的随机源（可复现训练用）；0 表示随机
	Seed int64
}

func (o *TrainOptions) withDefaults() {
	if o.LearningRate <= 0 {
		o.LearningRate = DefaultLearningRate
	}
	if o.Epochs <= 0 {
		o.Epochs = DefaultEpochs
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ValidationSplit <= 0 || o.ValidationSplit >= 1 {
		o.ValidationSplit = DefaultValidationSplit
	}
	if o.DropoutRates == nil {
		o.DropoutRates = DefaultDropoutRates
	}
}

// Metrics 是一次训练的结果指标。
type Metrics struct {
	TrainLoss float64 `json:"train_loss"`
	ValLoss   float64 `json:"val_loss"`
	Examples  int     `json:"examples"`
	Epochs    int     `json:"epochs"`
}

// Train 用二元交叉熵 + mini-batch SGD 训练网络。
//
// 流程：打散样本 → 切出验证集 → 固定 epoch 预算迭代 → 返回损失指标。
// 网络应当是新初始化的（每轮训练从零开始，不做 warm-start）。
func (m *FeedDNN) Train(examples []Example, opts TrainOptions) (*Metrics, error) {
	if len(examples) == 0 {
		return nil, ErrNoExamples
	}
	opts.withDefaults()

	var rng *rand.Rand
	if opts.Seed != 0 {
		rng = rand.New(rand.NewSource(opts.Seed))
	} else {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	shuffled := make([]Example, len(examples))
	copy(shuffled, examples)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	valCount := int(float64(len(shuffled)) * opts.ValidationSplit)
	train := shuffled[valCount:]
	val := shuffled[:valCount]
	if len(train) == 0 {
		train = shuffled
		val = nil
	}

	var trainLoss float64
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		rng.Shuffle(len(train), func(i, j int) {
			train[i], train[j] = train[j], train[i]
		})

		trainLoss = 0
		for start := 0; start < len(train); start += opts.BatchSize {
			end := start + opts.BatchSize
			if end > len(train) {
				end = len(train)
			}
			trainLoss += m.trainBatch(train[start:end], opts, rng)
		}
		trainLoss /= float64(len(train))
	}

	metrics := &Metrics{
		TrainLoss: trainLoss,
		Examples:  len(examples),
		Epochs:    opts.Epochs,
	}
	if len(val) > 0 {
		metrics.ValLoss = m.evaluate(val)
	}
	return metrics, nil
}

// trainBatch 对一个 mini-batch 做一次梯度累积与更新，返回该批的损失和。
func (m *FeedDNN) trainBatch(batch []Example, opts TrainOptions, rng *rand.Rand) float64 {
	gradW, gradB := m.zeroGrads()

	var loss float64
	for _, ex := range batch {
		masks := m.dropoutMasks(opts.DropoutRates, rng)
		acts := m.forward(ex.Input, masks)
		pred := acts[len(acts)-1][0]
		loss += bceLoss(pred, ex.Label)
		m.backprop(acts, masks, ex.Label, gradW, gradB)
	}

	// SGD 更新：按批大小平均
	scale := opts.LearningRate / float64(len(batch))
	for l := range m.Weights {
		for j := range m.Weights[l] {
			m.Biases[l][j] -= scale * gradB[l][j]
			for k := range m.Weights[l][j] {
				m.Weights[l][j][k] -= scale * gradW[l][j][k]
			}
		}
	}
	return loss
}

// backprop 反向传播，把单个样本的梯度累加到 gradW/gradB。
// sigmoid 输出 + BCE 的组合使输出层残差简化为 (pred - label)。
func (m *FeedDNN) backprop(acts, masks [][]float64, label float64, gradW [][][]float64, gradB [][]float64) {
	last := len(m.Weights) - 1
	deltas := make([][]float64, len(m.Weights))

	pred := acts[len(acts)-1][0]
	deltas[last] = []float64{pred - label}

	for l := last - 1; l >= 0; l-- {
		delta := make([]float64, m.Layers[l+1])
		for k := 0; k < m.Layers[l+1]; k++ {
			if acts[l+1][k] <= 0 {
				continue // ReLU 死区或被 dropout 置零
			}
			var sum float64
			for j := range deltas[l+1] {
				sum += m.Weights[l+1][j][k] * deltas[l+1][j]
			}
			if masks != nil && l < len(masks) && masks[l] != nil {
				sum *= masks[l][k]
			}
			delta[k] = sum
		}
		deltas[l] = delta
	}

	for l := range m.Weights {
		for j, d := range deltas[l] {
			if d == 0 {
				continue
			}
			gradB[l][j] += d
			for k := range m.Weights[l][j] {
				gradW[l][j][k] += d * acts[l][k]
			}
		}
	}
}

// dropoutMasks 生成 inverted dropout 掩码：保留值放大 1/(1-p)，推理期无需缩放。
func (m *FeedDNN) dropoutMasks(rates []float64, rng *rand.Rand) [][]float64 {
	masks := make([][]float64, len(m.Weights)-1)
	for l := 0; l < len(masks) && l < len(rates); l++ {
		p := rates[l]
		if p <= 0 {
			continue
		}
		mask := make([]float64, m.Layers[l+1])
		keep := 1.0 / (1.0 - p)
		for j := range mask {
			if rng.Float64() >= p {
				mask[j] = keep
			}
		}
		masks[l] = mask
	}
	return masks
}

// evaluate 计算数据集上的平均 BCE 损失（无 dropout）。
func (m *FeedDNN) evaluate(examples []Example) float64 {
	var loss float64
	for _, ex := range examples {
		loss += bceLoss(m.Predict(ex.Input), ex.Label)
	}
	return loss / float64(len(examples))
}

func (m *FeedDNN) zeroGrads() ([][][]float64, [][]float64) {
	gradW := make([][][]float64, len(m.Weights))
	gradB := make([][]float64, len(m.Biases))
	for l := range m.Weights {
		gradW[l] = make([][]float64, len(m.Weights[l]))
		gradB[l] = make([]float64, len(m.Biases[l]))
		for j := range m.Weights[l] {
			gradW[l][j] = make([]float64, len(m.Weights[l][j]))
		}
	}
	return gradW, gradB
}

const lossEps = 1e-12

func bceLoss(pred, label float64) float64 {
	return -(label*math.Log(pred+lossEps) + (1-label)*math.Log(1-pred+lossEps))
}
