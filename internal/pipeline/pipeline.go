// Package pipeline chains the forecasting stages end to end: ETL, offline
// feature engineering, cross-validation, training, future spanning and
// prediction. Stages are parameter-addressed through the tracking store,
// so a rerun with identical parameters and revision reuses recorded
// artifacts instead of recomputing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cashcast/internal/config"
	"cashcast/internal/exporter"
	"cashcast/internal/extract"
	"cashcast/internal/features"
	"cashcast/internal/forecast"
	"cashcast/internal/model"
	"cashcast/internal/tracking"
	"cashcast/internal/transform"
	"cashcast/pkg/contracts/domain"
)

// ErrInsufficientHistory is returned when the training window is shorter
// than the configured lag, leaving no usable feature rows.
var ErrInsufficientHistory = errors.New("insufficient history to train")

// Runner executes the full forecasting pipeline.
type Runner struct {
	cfg    *config.Config
	store  *tracking.Store
	tracer trace.Tracer
	logger *slog.Logger
}

// NewRunner wires a pipeline runner from its collaborators.
func NewRunner(cfg *config.Config, store *tracking.Store, tracer trace.Tracer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, store: store, tracer: tracer, logger: logger}
}

// Run executes load, validate, train and predict in order. The caller's
// context bounds the whole invocation; there are no internal timeouts.
func (r *Runner) Run(ctx context.Context) error {
	series, err := r.loadStage(ctx)
	if err != nil {
		return err
	}

	xTrain, yTrain, err := r.offlineFeatures(ctx, series)
	if err != nil {
		return err
	}

	ensemble := r.newEnsemble()
	if err := r.validateStage(ctx, ensemble, xTrain, yTrain); err != nil {
		return err
	}

	trained, err := r.trainStage(ctx, ensemble, xTrain, yTrain)
	if err != nil {
		return err
	}

	return r.predictStage(ctx, trained)
}

// loadStage runs the ETL over the training week range. The resampled
// series is always reloaded from the run's artifact, whether the run is
// fresh or reused.
func (r *Runner) loadStage(ctx context.Context) (domain.TimeSeries, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.load")
	defer span.End()

	p := r.cfg.Pipeline
	params := r.baseParams()
	params["start_week"] = strconv.Itoa(p.StartWeek)
	params["end_week"] = strconv.Itoa(p.EndWeek)

	run, err := r.store.GetOrRun(ctx, "load", params, r.cfg.Tracking.Revision, func(ctx context.Context, run *tracking.Run) error {
		series, err := r.etl(ctx, p.StartWeek, p.EndWeek)
		if err != nil && !errors.Is(err, transform.ErrNoData) {
			return err
		}
		if errors.Is(err, transform.ErrNoData) {
			r.logger.WarnContext(ctx, "training window holds no order data",
				slog.Int("start_week", p.StartWeek),
				slog.Int("end_week", p.EndWeek),
			)
		}
		return exporter.NewSink(run.ArtifactDir, r.logger).SaveSeries(series, "data_clean/data.csv")
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("run_id", run.ID))
	return exporter.NewSink(run.ArtifactDir, r.logger).LoadSeries("data_clean/data.csv")
}

// offlineFeatures derives the training features and target from the
// resampled series.
func (r *Runner) offlineFeatures(ctx context.Context, series domain.TimeSeries) (*domain.Frame, []float64, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.features")
	defer span.End()

	p := r.cfg.Pipeline
	frame, err := features.Offline(series, p.Degree, p.LagInWeek)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("offline features: %w", err)
	}
	if frame.NumRows() == 0 {
		span.SetStatus(codes.Error, ErrInsufficientHistory.Error())
		return nil, nil, fmt.Errorf("%w: %d buckets for a %d-week lag", ErrInsufficientHistory, len(series), p.LagInWeek)
	}
	y := frame.DropColumn(features.TargetColumn)
	r.logger.InfoContext(ctx, "offline features built",
		slog.Int("rows", frame.NumRows()),
		slog.Int("columns", len(frame.Columns)),
	)
	span.SetAttributes(attribute.Int("rows", frame.NumRows()))
	return frame, y, nil
}

// validateStage cross-validates the ensemble and records per-fold error
// metrics plus the stitched validation predictions.
func (r *Runner) validateStage(ctx context.Context, ensemble *model.MultiModel, x *domain.Frame, y []float64) error {
	ctx, span := r.tracer.Start(ctx, "pipeline.validate")
	defer span.End()

	p := r.cfg.Pipeline
	_, err := r.store.GetOrRun(ctx, "validate", r.modelParams(), r.cfg.Tracking.Revision, func(ctx context.Context, run *tracking.Run) error {
		maes, preds, err := forecast.CrossValidate(ctx, ensemble, x, y, p.NFold, p.EffectiveWorkers())
		if err != nil {
			return err
		}
		for i, foldMAEs := range maes {
			low, high := foldMAEs[0], foldMAEs[0]
			for j, mae := range foldMAEs {
				run.LogMetric(fmt.Sprintf("mae_%d_fold_%d", j, i), mae)
				if mae < low {
					low = mae
				}
				if mae > high {
					high = mae
				}
			}
			run.LogMetric(fmt.Sprintf("mae_min_fold_%d", i), low)
			run.LogMetric(fmt.Sprintf("mae_max_fold_%d", i), high)
		}
		return exporter.NewSink(run.ArtifactDir, r.logger).SavePredictions(preds, "cross_validation/predictions.csv")
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// trainStage fits the ensemble on the full training set and persists it.
// The model is always restored from the run artifact so a reused run
// yields exactly the model it recorded.
func (r *Runner) trainStage(ctx context.Context, ensemble *model.MultiModel, x *domain.Frame, y []float64) (*model.MultiModel, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.train")
	defer span.End()

	run, err := r.store.GetOrRun(ctx, "train", r.modelParams(), r.cfg.Tracking.Revision, func(ctx context.Context, run *tracking.Run) error {
		if err := ensemble.Fit(ctx, x, y); err != nil {
			return err
		}
		sink := exporter.NewSink(run.ArtifactDir, r.logger)
		if err := sink.SaveFrame(x, "training_set/x_train.csv"); err != nil {
			return err
		}
		if err := sink.SaveSeries(seriesFrom(x, y), "training_set/y_train.csv"); err != nil {
			return err
		}
		return ensemble.Save(sink.Path("multi_model/model.json"))
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	trained := model.NewMultiModel(r.newBase(), r.cfg.Pipeline.NModels, r.cfg.Pipeline.EffectiveWorkers())
	if err := trained.Load(exporter.NewSink(run.ArtifactDir, r.logger).Path("multi_model/model.json")); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return trained, nil
}

// predictStage spans the future horizon, builds online features from the
// recent past and records the ensemble's predictions.
func (r *Runner) predictStage(ctx context.Context, trained *model.MultiModel) error {
	ctx, span := r.tracer.Start(ctx, "pipeline.predict")
	defer span.End()

	p := r.cfg.Pipeline
	params := r.modelParams()
	params["next_week"] = strconv.Itoa(p.NextWeek)
	params["horizon"] = p.Horizon.String()

	_, err := r.store.GetOrRun(ctx, "predict", params, r.cfg.Tracking.Revision, func(ctx context.Context, run *tracking.Run) error {
		past, err := r.etl(ctx, p.NextWeek-p.LagInWeek, p.NextWeek-1)
		if err != nil {
			if errors.Is(err, transform.ErrNoData) {
				return fmt.Errorf("%w: weeks %d..%d are empty", ErrInsufficientHistory, p.NextWeek-p.LagInWeek, p.NextWeek-1)
			}
			return err
		}
		dates := forecast.SpanFuture(past[len(past)-1].Date, p.Horizon, r.cfg.Data.Freq)
		xPred, err := features.Online(dates, past, p.Degree, p.LagInWeek)
		if err != nil {
			return err
		}
		sink := exporter.NewSink(run.ArtifactDir, r.logger)
		if err := sink.SaveFrame(xPred, "prediction_set/x_pred.csv"); err != nil {
			return err
		}
		if err := sink.SaveFrame(xPred, "prediction_set/x_pred.json"); err != nil {
			return err
		}
		preds, err := trained.Predict(xPred)
		if err != nil {
			return err
		}
		return sink.SavePredictions(preds, "predictions/y_pred.csv")
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Runner) etl(ctx context.Context, startWeek, endWeek int) (domain.TimeSeries, error) {
	ex := extract.NewExtractor(r.cfg.Data.Dir, r.logger)
	return transform.Etl(ctx, ex, startWeek, endWeek, r.cfg.Data.Sources, r.cfg.Data.Freq)
}

func (r *Runner) newBase() model.Estimator {
	return model.NewForestRegressor(r.cfg.Pipeline.NEstimators)
}

func (r *Runner) newEnsemble() *model.MultiModel {
	return model.NewMultiModel(r.newBase(), r.cfg.Pipeline.NModels, r.cfg.Pipeline.EffectiveWorkers())
}

// baseParams are the parameters shared by every stage key.
func (r *Runner) baseParams() map[string]string {
	return map[string]string{
		"sources": strings.Join(r.cfg.Data.Sources, ","),
		"freq":    r.cfg.Data.Freq.String(),
	}
}

// modelParams extends baseParams with everything that affects the fitted
// model, so any hyperparameter change forces a fresh run.
func (r *Runner) modelParams() map[string]string {
	p := r.cfg.Pipeline
	params := r.baseParams()
	params["start_week"] = strconv.Itoa(p.StartWeek)
	params["end_week"] = strconv.Itoa(p.EndWeek)
	params["n_fold"] = strconv.Itoa(p.NFold)
	params["n_estimators"] = strconv.Itoa(p.NEstimators)
	params["n_models"] = strconv.Itoa(p.NModels)
	params["degree"] = strconv.Itoa(p.Degree)
	params["lag_in_week"] = strconv.Itoa(p.LagInWeek)
	return params
}

// seriesFrom pairs the frame's dates with the target for artifact output.
func seriesFrom(x *domain.Frame, y []float64) domain.TimeSeries {
	series := make(domain.TimeSeries, len(y))
	for i := range y {
		series[i] = domain.Bucket{Date: x.Dates[i], CashIn: y[i]}
	}
	return series
}
