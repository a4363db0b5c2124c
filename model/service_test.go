package model

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/rushteam/feedrank/core"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "dnn.json")
	m := NewFeedDNN([]int{4, 8, 1}, rand.New(rand.NewSource(1)))
	trainedAt := time.Now().Truncate(time.Second)

	if err := SaveFeedDNN(path, m, trainedAt, 123); err != nil {
		t.Fatalf("SaveFeedDNN: %v", err)
	}

	loaded, gotAt, gotCount, err := LoadFeedDNN(path)
	if err != nil {
		t.Fatalf("LoadFeedDNN: %v", err)
	}
	if !gotAt.Equal(trainedAt) || gotCount != 123 {
		t.Errorf("metadata = (%v, %d), want (%v, 123)", gotAt, gotCount, trainedAt)
	}

	probe := []float64{0.1, 0.9, 0.5, 0.3}
	if loaded.Predict(probe) != m.Predict(probe) {
		t.Error("loaded model predicts differently from saved model")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, _, _, err := LoadFeedDNN(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing model file")
	}
}

func TestServicePredictWithoutModel(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "dnn.json"))

	if svc.IsModelTrained(context.Background()) {
		t.Fatal("IsModelTrained should be false before any training")
	}
	_, err := svc.Predict(context.Background(), make([]float64, 196), [][]float64{make([]float64, 197)})
	if !errors.Is(err, ErrModelNotTrained) {
		t.Fatalf("err = %v, want ErrModelNotTrained", err)
	}
	if !core.IsNotTrained(err) {
		t.Error("error should carry the not-trained domain code")
	}
}

func TestServiceTrainAndPredict(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dnn.json")
	svc := NewService(path)

	examples := trainingExamples(40)
	metrics, err := svc.Train(ctx, examples, TrainOptions{Epochs: 2, Seed: 9})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if metrics.Examples != len(examples) {
		t.Errorf("metrics.Examples = %d, want %d", metrics.Examples, len(examples))
	}

	if !svc.IsModelTrained(ctx) {
		t.Fatal("IsModelTrained should be true after training")
	}
	if svc.LastTrainedAt().IsZero() {
		t.Error("LastTrainedAt should be set")
	}
	if svc.TotalTrainingExamples() != len(examples) {
		t.Errorf("TotalTrainingExamples = %d, want %d", svc.TotalTrainingExamples(), len(examples))
	}

	scores, err := svc.Predict(ctx, make([]float64, 196), [][]float64{make([]float64, 197), make([]float64, 197)})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("len(scores) = %d, want 2", len(scores))
	}
	for _, s := range scores {
		if s < 0 || s > 1 {
			t.Errorf("score = %v, want [0, 1]", s)
		}
	}
}

func TestServiceLazyLoadFromDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dnn.json")

	first := NewService(path)
	if _, err := first.Train(ctx, trainingExamples(40), TrainOptions{Epochs: 1, Seed: 10}); err != nil {
		t.Fatalf("Train: %v", err)
	}

	// 新进程视角：同一路径的新 Service 懒加载持久化模型
	second := NewService(path)
	if !second.IsModelTrained(ctx) {
		t.Fatal("second service should lazy-load the persisted model")
	}
	if second.TotalTrainingExamples() != 40 {
		t.Errorf("TotalTrainingExamples = %d, want 40", second.TotalTrainingExamples())
	}
}

func trainingExamples(n int) []Example {
	rng := rand.New(rand.NewSource(42))
	examples := make([]Example, 0, n)
	for i := 0; i < n; i++ {
		input := make([]float64, InputDim)
		for j := 0; j < 8; j++ {
			input[rng.Intn(InputDim)] = rng.Float64()
		}
		examples = append(examples, Example{Input: input, Label: float64(i % 2)})
	}
	return examples
}
