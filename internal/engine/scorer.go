package engine

import (
	"errors"
	"fmt"
	"math"

	"CalmPulse/internal/domain/models"
	domsvc "CalmPulse/internal/domain/service"
	xlogger "CalmPulse/pkg/logger"
)

// ErrScorerUnavailable is returned when the model backend cannot produce a
// score. The combiner treats it as "ML unavailable" and falls back to the
// rule result for that call.
var ErrScorerUnavailable = errors.New("scorer unavailable")

// MLScorer wraps the opaque model backend with the adjustable decision
// threshold and its online adaptation. The model itself is never retrained on
// device; only the cutoff applied to its output moves.
type MLScorer struct {
	backend domsvc.Scorer
	state   *State
	params  Params
	logger  *xlogger.Logger
}

func NewMLScorer(backend domsvc.Scorer, state *State, logger *xlogger.Logger, params Params) *MLScorer {
	return &MLScorer{backend: backend, state: state, logger: logger, params: params}
}

// Predict returns the raw model score in [0,1].
func (s *MLScorer) Predict(fv models.FeatureVector) (float64, error) {
	if s.backend == nil || !s.backend.Ready() {
		return 0, ErrScorerUnavailable
	}
	score, err := s.backend.Predict(fv)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
	}
	return score, nil
}

// PredictWithConfidence returns the raw score plus a calibration-style
// confidence: distance from the decision midpoint, rescaled to [0,1].
func (s *MLScorer) PredictWithConfidence(fv models.FeatureVector) (score, confidence float64, err error) {
	score, err = s.Predict(fv)
	if err != nil {
		return 0, 0, err
	}
	return score, math.Abs(score-0.5) * 2, nil
}

// PredictWithAdjustedThreshold applies the online-adapted cutoff to the raw
// score.
func (s *MLScorer) PredictWithAdjustedThreshold(fv models.FeatureVector) (score float64, anxious bool, err error) {
	score, err = s.Predict(fv)
	if err != nil {
		return 0, false, err
	}
	return score, score > s.state.AdjustedThreshold(), nil
}

// Detect runs the model against the feature vector and builds a candidate
// event. A nil event with nil error means insufficient data or a confident
// negative; an ErrScorerUnavailable error means the backend is unusable for
// this call.
func (s *MLScorer) Detect(fv models.FeatureVector, current models.Reading, baseline models.Baseline, recentCount int, isNight bool) (*models.AnxietyEvent, float64, error) {
	if recentCount < s.params.MinRecentForML {
		return nil, 0, nil
	}
	score, fired, err := s.PredictWithAdjustedThreshold(fv)
	if err != nil {
		return nil, 0, err
	}

	confidence := math.Abs(score-0.5) * 2
	gate := confidence
	if !fired {
		gate = confidence * 0.5
	}
	if !fired || gate < s.params.MinConfidence {
		return nil, score, nil
	}

	evType := models.EventGeneralSpike
	if isNight {
		evType = models.EventPreSleep
	}
	ev := &models.AnxietyEvent{
		Timestamp:         current.Timestamp,
		Type:              evType,
		Confidence:        score,
		HeartRate:         valueOrZero(current.HeartRate),
		BaselineHeartRate: baseline.AvgHeartRate,
		HRV:               current.HRV,
		Temperature:       current.Temperature,
		Activity:          activityFor(valueOrZero(current.Motion), s.params),
		Method:            models.MethodMLBased,
		Source:            current.Source,
	}
	if baseline.AvgHRV > 0 {
		v := baseline.AvgHRV
		ev.BaselineHRV = &v
	}
	ev.BaselineTemperature = baseline.AvgTemp
	return ev, score, nil
}

// Learn feeds one labeled outcome into threshold adaptation. A false positive
// raises the cutoff by the learning rate, a false negative lowers it; both
// thresholds stay inside their configured bounds. The sample joins the
// rolling history; periodically a prediction-error audit runs and, when the
// recent error is high, per-feature correlations are logged for
// observability. Model weights never change.
func (s *MLScorer) Learn(features models.FeatureVector, rawScore, label float64) {
	res := s.state.learn(trainingSample{Features: features, Score: rawScore, Label: label}, s.params)
	if res.Adjusted {
		s.logger.Info("ml threshold adjusted",
			xlogger.Float64("threshold", res.Threshold),
			xlogger.Float64("alert_threshold", res.AlertThreshold),
			xlogger.Float64("score", rawScore),
			xlogger.Float64("label", label))
	}
	if res.AuditRan && res.MeanError > 0.3 {
		s.logger.Warn("recent prediction error elevated",
			xlogger.Float64("mean_error", res.MeanError),
			xlogger.Float64("feedback_error_rate", res.FeedbackErrorRate),
			xlogger.Int("top_feature", res.TopFeature),
			xlogger.Float64("top_correlation", res.TopCorrelation))
	}
}

type learnResult struct {
	Threshold         float64
	AlertThreshold    float64
	Adjusted          bool
	AuditRan          bool
	MeanError         float64
	FeedbackErrorRate float64
	TopFeature        int
	TopCorrelation    float64
}

const errorAuditEvery = 25
const errorAuditMinHistory = 50

func (s *State) learn(sample trainingSample, p Params) learnResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res learnResult

	falsePositive := sample.Score > 0.5 && sample.Label < 0.5
	falseNegative := sample.Score < 0.5 && sample.Label > 0.5
	if falsePositive {
		s.adjustedThreshold += p.ThresholdLearningRate
		s.alertThreshold += p.ThresholdLearningRate
	} else if falseNegative {
		s.adjustedThreshold -= p.ThresholdLearningRate
		s.alertThreshold -= p.ThresholdLearningRate
	}
	if falsePositive || falseNegative {
		s.adjustedThreshold = clamp(s.adjustedThreshold, p.ThresholdMin, p.ThresholdMax)
		s.alertThreshold = clamp(s.alertThreshold, p.AlertThresholdMin, p.AlertThresholdMax)
		s.adjustments++
		res.Adjusted = true
	}

	s.history = append(s.history, sample)
	if len(s.history) > s.historyCap {
		s.history = s.history[len(s.history)-s.historyCap:]
	}
	s.sinceCheck++

	if s.sinceCheck >= errorAuditEvery && len(s.history) >= errorAuditMinHistory {
		s.sinceCheck = 0
		res.AuditRan = true
		res.MeanError = meanError(s.history[len(s.history)-errorAuditEvery:])
		res.FeedbackErrorRate = s.feedbackErrorRateLocked()
		if res.MeanError > 0.3 {
			res.TopFeature, res.TopCorrelation = topFeatureCorrelation(s.history)
		}
	}

	res.Threshold = s.adjustedThreshold
	res.AlertThreshold = s.alertThreshold
	return res
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func meanError(samples []trainingSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(s.Score - s.Label)
	}
	return sum / float64(len(samples))
}

// topFeatureCorrelation computes the Pearson correlation between each feature
// and the label over the retained history and returns the strongest one. This
// is observability only; it never alters the model.
func topFeatureCorrelation(samples []trainingSample) (feature int, correlation float64) {
	n := float64(len(samples))
	if n < 2 {
		return 0, 0
	}
	var labelSum, labelSq float64
	for _, s := range samples {
		labelSum += s.Label
		labelSq += s.Label * s.Label
	}
	labelMean := labelSum / n
	labelVar := labelSq/n - labelMean*labelMean

	best := 0.0
	bestIdx := 0
	for f := 0; f < models.FeatureCount; f++ {
		var sum, sq, cross float64
		for _, s := range samples {
			v := s.Features[f]
			sum += v
			sq += v * v
			cross += v * s.Label
		}
		mean := sum / n
		fVar := sq/n - mean*mean
		if fVar <= 0 || labelVar <= 0 {
			continue
		}
		corr := (cross/n - mean*labelMean) / math.Sqrt(fVar*labelVar)
		if math.Abs(corr) > math.Abs(best) {
			best, bestIdx = corr, f
		}
	}
	return bestIdx, best
}
