package tensor

import "testing"

func benchConfig() GPTConfig {
	return GPTConfig{BlockSize: 64, VocabSize: 256, NLayer: 2, NHead: 4, NEmbd: 64}
}

func BenchmarkForward(b *testing.B) {
	m, err := NewGPT(benchConfig(), 1)
	if err != nil {
		b.Fatal(err)
	}
	idx, _ := shiftedBatch(4, 32, m.Config.VocabSize)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Forward(idx); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportMetric(float64(4*32*b.N)/b.Elapsed().Seconds(), "tok/s")
}

func BenchmarkTrainStep(b *testing.B) {
	m, err := NewGPT(benchConfig(), 1)
	if err != nil {
		b.Fatal(err)
	}
	opt := NewAdamW(m.Parameters(), 3e-4)
	idx, targets := shiftedBatch(4, 32, m.Config.VocabSize)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		opt.ZeroGrad()
		if _, _, err := m.ForwardLoss(idx, targets); err != nil {
			b.Fatal(err)
		}
		if err := m.Backward(); err != nil {
			b.Fatal(err)
		}
		opt.Step()
	}
	b.ReportMetric(float64(4*32*b.N)/b.Elapsed().Seconds(), "tok/s")
}
