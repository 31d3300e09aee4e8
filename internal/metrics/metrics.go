package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrainStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpt_train_steps_total",
		Help: "The total number of optimizer steps taken",
	})

	TrainLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpt_train_loss",
		Help: "Cross-entropy loss of the most recent training step",
	})

	TrainStepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gpt_train_step_duration_seconds",
		Help:    "Wall time of forward, backward and optimizer update",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	})

	TrainTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpt_train_tokens_total",
		Help: "The total number of target tokens trained on",
	})

	GradNorm = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpt_grad_norm",
		Help: "Global L2 norm of the gradients before clipping",
	})

	GeneratedTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpt_generated_tokens_total",
		Help: "The total number of tokens sampled during generation",
	})

	ForwardDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gpt_forward_duration_seconds",
		Help:    "Duration of model forward passes",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	CheckpointImportDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "gpt_checkpoint_import_duration_seconds",
		Help: "Duration of checkpoint imports",
	})

	CheckpointTensorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpt_checkpoint_tensors_total",
		Help: "Tensors copied during checkpoint import",
	}, []string{"layout"})
)

// RecordTrainStep records one optimizer step.
func RecordTrainStep(loss float32, tokens int, d time.Duration) {
	TrainStepsTotal.Inc()
	TrainLoss.Set(float64(loss))
	TrainTokensTotal.Add(float64(tokens))
	TrainStepDuration.Observe(d.Seconds())
}

func RecordGradNorm(norm float64) {
	GradNorm.Set(norm)
}

func RecordGeneratedTokens(n int) {
	GeneratedTokensTotal.Add(float64(n))
}

// RecordForward observes a forward pass. mode is "train" or "eval".
func RecordForward(mode string, d time.Duration) {
	ForwardDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordCheckpointImport records an import that copied plain and transposed tensors.
func RecordCheckpointImport(d time.Duration, plain, transposed int) {
	CheckpointImportDuration.Observe(d.Seconds())
	CheckpointTensorsTotal.WithLabelValues("plain").Add(float64(plain))
	CheckpointTensorsTotal.WithLabelValues("transposed").Add(float64(transposed))
}
