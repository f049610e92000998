package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/markov"
	"github.com/stemforge/stemforge-be/src/shared/separation/modelstore"
	"github.com/stemforge/stemforge-be/src/shared/separation/quality"
	"github.com/stemforge/stemforge-be/src/shared/separation/separator"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
	"github.com/stemforge/stemforge-be/src/shared/separation/spectral"
)

const (
	// the neural engine only pays off on longer material
	neuralMinDuration = 30 * time.Second

	// dynamic range above which factorization tends to beat median
	// filtering
	highDynamicRangeDB = 40.0

	peakHeadroom  = 0.95
	gateThreshold = 0.02
)

// Orchestrator drives one request through the full pipeline: validate,
// analyze, pick an algorithm, separate with fallback, refine with any
// trained instrument models, post-process, and grade the stems. It is
// safe for concurrent use, all job state lives on the stack.
type Orchestrator struct {
	external separator.Separator
	hpss     separator.Separator
	nmf      separator.Separator
	ica      separator.Separator

	models   modelstore.Store
	assessor quality.Assessor
	sink     ProgressSink
	config   separator.Config
}

type Deps struct {
	// External is optional, the other algorithms are built in.
	External separator.Separator

	Models modelstore.Store
	Sink   ProgressSink
	Config separator.Config
}

func New(deps Deps) *Orchestrator {
	if deps.Sink == nil {
		deps.Sink = NoopSink{}
	}
	if deps.Models == nil {
		deps.Models = modelstore.NewMemoryStore()
	}

	return &Orchestrator{
		external: deps.External,
		hpss:     separator.NewHPSSSeparator(deps.Config),
		nmf:      separator.NewNMFSeparator(deps.Config),
		ica:      separator.NewICASeparator(deps.Config),
		models:   deps.Models,
		assessor: quality.NewAssessor(),
		sink:     deps.Sink,
		config:   deps.Config,
	}
}

// Run executes the request to a terminal status. Validation failures
// return before any progress is emitted. Cancellation is honored at
// stage boundaries only, never mid-algorithm.
func (o *Orchestrator) Run(ctx context.Context, request Request) (Result, error) {
	if err := request.Buffer.Validate(); err != nil {
		return Result{}, cerr.Field("job_id", request.JobID).
			Wrap(err).Error("Rejecting separation request")
	}

	started := time.Now()
	logger := log.WithFields(log.Fields{
		"job_id":   request.JobID,
		"strategy": request.Strategy,
	})
	logger.Info("Starting separation job")

	o.emit(request.JobID, StatusPending)

	if cancelled(ctx) {
		return o.cancel(request, started), nil
	}

	o.emit(request.JobID, StatusPreprocessing)
	stft := spectral.NewSTFT(o.config.WindowSize, o.config.HopSize)
	spec := stft.Analyze(request.Buffer.Samples(), request.Buffer.SampleRate())
	analysis := analyze(request.Buffer, spec)

	if cancelled(ctx) {
		return o.cancel(request, started), nil
	}

	o.emit(request.JobID, StatusAnalyzing)
	warnings := []string{}
	patterns := o.analyzePatterns(request.Buffer, &warnings)

	if cancelled(ctx) {
		return o.cancel(request, started), nil
	}

	o.emit(request.JobID, StatusSeparating)
	nComponents := componentCount(request.Stems)

	stems, method, err := o.separate(ctx, request, analysis, nComponents, &warnings)
	if err != nil {
		o.emit(request.JobID, StatusFailed)
		return Result{
			JobID:          request.JobID,
			Status:         StatusFailed,
			ProcessingTime: time.Since(started),
			SampleRate:     request.Buffer.SampleRate(),
			Analysis:       analysis,
			Warnings:       warnings,
		}, cerr.Field("job_id", request.JobID).Wrap(err).Error("All separation algorithms failed")
	}

	stems = o.relabel(stems)
	stems = o.refine(request, stft, spec, stems, &warnings)
	stems = filterRequested(stems, request.Stems, &warnings)

	if cancelled(ctx) {
		return o.cancel(request, started), nil
	}

	o.emit(request.JobID, StatusPostprocessing)
	for name, stem := range stems {
		out := audio.PeakNormalize(stem, peakHeadroom)
		if request.ApplyGate {
			out = audio.Gate(out, gateThreshold)
		}
		stems[name] = out
	}

	scores := o.assessor.ScoreAll(stems, request.Buffer)

	o.emit(request.JobID, StatusCompleted)
	logger.WithFields(log.Fields{
		"method":   method,
		"stems":    len(stems),
		"warnings": len(warnings),
	}).Info("Separation job complete")

	return Result{
		JobID:          request.JobID,
		Status:         StatusCompleted,
		Stems:          stems,
		Quality:        scores,
		Patterns:       patterns,
		MethodUsed:     method,
		ProcessingTime: time.Since(started),
		SampleRate:     request.Buffer.SampleRate(),
		Analysis:       analysis,
		Warnings:       warnings,
	}, nil
}

func (o *Orchestrator) cancel(request Request, started time.Time) Result {
	log.WithField("job_id", request.JobID).Info("Separation job cancelled")
	o.emit(request.JobID, StatusCancelled)

	return Result{
		JobID:          request.JobID,
		Status:         StatusCancelled,
		ProcessingTime: time.Since(started),
		SampleRate:     request.Buffer.SampleRate(),
	}
}

func (o *Orchestrator) emit(jobID string, stage Status) {
	err := o.sink.Publish(Progress{
		JobID:      jobID,
		Stage:      stage,
		Percentage: stagePercentage[stage],
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"job_id": jobID,
			"stage":  stage,
		}).Warn("Failed to publish progress, continuing")
	}
}

// separate picks candidate algorithms for the strategy and runs them in
// priority order until one succeeds.
func (o *Orchestrator) separate(ctx context.Context, request Request, analysis Analysis, nComponents int, warnings *[]string) (map[string]audio.Buffer, string, error) {
	if request.Strategy == StrategyBalanced {
		stems, method, err := o.runBalanced(ctx, request.Buffer, nComponents)
		if err == nil {
			return stems, method, nil
		}

		cerr.Log(err)
		*warnings = append(*warnings, "balanced split failed, falling back to harmonic/percussive")
	}

	for _, candidate := range o.candidates(request.Strategy, analysis) {
		if !candidate.Available() {
			*warnings = append(*warnings, fmt.Sprintf("%s is unavailable, trying the next algorithm", candidate.Name()))
			continue
		}

		stems, err := candidate.TrySeparate(ctx, request.Buffer, nComponents)
		if err == nil {
			return stems, candidate.Name(), nil
		}

		if errors.Is(err, seperrors.AlgorithmUnavailable) || errors.Is(err, seperrors.AlgorithmFailure) {
			cerr.Log(err)
			*warnings = append(*warnings, fmt.Sprintf("%s failed, trying the next algorithm", candidate.Name()))
			continue
		}

		return nil, "", err
	}

	return nil, "", cerr.Field("strategy", request.Strategy).
		Wrap(seperrors.AlgorithmFailure).
		Error("No separation algorithm could process the input")
}

// candidates orders the bank by strategy. For auto: the neural engine
// when present and the material is long enough, then the cheap
// general-purpose split, then factorization when the dynamic range
// suggests it will help, with the cheap split as the final fallback.
func (o *Orchestrator) candidates(strategy Strategy, analysis Analysis) []separator.Separator {
	switch strategy {
	case StrategyFast:
		return []separator.Separator{o.hpss}

	case StrategyBalanced:
		return []separator.Separator{o.hpss}

	case StrategyQuality:
		ordered := []separator.Separator{}
		if o.external != nil {
			ordered = append(ordered, o.external)
		}
		return append(ordered, o.nmf, o.ica, o.hpss)

	default:
		ordered := []separator.Separator{}
		if o.external != nil && analysis.Duration > neuralMinDuration {
			ordered = append(ordered, o.external)
		}

		ordered = append(ordered, o.hpss)
		if analysis.DynamicRangeDB > highDynamicRangeDB {
			ordered = append(ordered, o.nmf)
		}

		return ordered
	}
}

// runBalanced splits off the percussive content first, then factorizes
// only the harmonic remainder where templates are better behaved.
func (o *Orchestrator) runBalanced(ctx context.Context, buffer audio.Buffer, nComponents int) (map[string]audio.Buffer, string, error) {
	coarse, err := o.hpss.TrySeparate(ctx, buffer, 4)
	if err != nil {
		return nil, "", cerr.Wrap(err).Error("Harmonic/percussive pre-split failed")
	}

	if nComponents <= 2 {
		return map[string]audio.Buffer{
			"vocals": coarse["vocals"],
			"other":  coarse["other"],
		}, "balanced_split", nil
	}

	harmonic, err := audio.MixDown(map[string]audio.Buffer{
		"vocals": coarse["vocals"],
		"bass":   coarse["bass"],
		"other":  coarse["other"],
	}, nil)
	if err != nil {
		return nil, "", cerr.Wrap(err).Error("Failed to recombine the harmonic content")
	}

	factored, err := o.nmf.TrySeparate(ctx, harmonic, 3)
	if err != nil {
		return nil, "", cerr.Wrap(err).Error("Factorizing the harmonic content failed")
	}

	// positional names from the 3-way factorization land on
	// vocals/drums/bass, remap the middle one
	return map[string]audio.Buffer{
		"vocals": factored["vocals"],
		"drums":  coarse["drums"],
		"bass":   factored["bass"],
		"other":  factored["drums"],
	}, "balanced_split", nil
}

// refine replaces raw stems with model-guided versions wherever a
// trained model for that instrument exists. Refinement trouble keeps
// the raw stem and records a warning.
func (o *Orchestrator) refine(request Request, stft *spectral.STFT, spec *spectral.Spectrogram, stems map[string]audio.Buffer, warnings *[]string) map[string]audio.Buffer {
	for name := range stems {
		model, ok := o.models.Get(name)
		if !ok || !model.Trained() {
			continue
		}

		mask, err := model.GenerateMask(request.Buffer, spec, request.MaskThreshold)
		if err != nil {
			cerr.Log(err)
			*warnings = append(*warnings, fmt.Sprintf("model refinement for %s failed, keeping the raw stem", name))
			continue
		}

		masked := make([][]float64, spec.TimeFrames())
		for f := range masked {
			masked[f] = make([]float64, spec.FreqBins())
			for b := range masked[f] {
				masked[f][b] = spec.Magnitude[f][b] * mask[f][b]
			}
		}

		samples := stft.Synthesize(masked, spec.Phase, request.Buffer.Len())
		stems[name] = audio.New(samples, request.Buffer.SampleRate())

		log.WithFields(log.Fields{
			"job_id":     request.JobID,
			"instrument": name,
		}).Info("Refined stem with trained instrument model")
	}

	return stems
}

// analyzePatterns runs the temporal statistics of every trained model
// over the mix. Purely informational, failures degrade to a warning.
func (o *Orchestrator) analyzePatterns(buffer audio.Buffer, warnings *[]string) map[string]markov.PatternStats {
	instruments := o.models.Instruments()
	if len(instruments) == 0 {
		return nil
	}

	patterns := map[string]markov.PatternStats{}
	for _, instrument := range instruments {
		model, ok := o.models.Get(instrument)
		if !ok || !model.Trained() {
			continue
		}

		stats, err := model.AnalyzePatterns(buffer)
		if err != nil {
			cerr.Log(err)
			*warnings = append(*warnings, fmt.Sprintf("pattern analysis for %s failed", instrument))
			continue
		}

		patterns[instrument] = stats
	}

	return patterns
}

func cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

func analyze(buffer audio.Buffer, spec *spectral.Spectrogram) Analysis {
	return Analysis{
		Duration:       buffer.Duration(),
		SampleRate:     buffer.SampleRate(),
		RMS:            buffer.RMS(),
		Peak:           buffer.Peak(),
		DynamicRangeDB: spectral.DynamicRangeDB(spec),
	}
}

func componentCount(requested []string) int {
	if len(requested) == 0 || len(requested) > 2 {
		return 4
	}

	return 2
}

func filterRequested(stems map[string]audio.Buffer, requested []string, warnings *[]string) map[string]audio.Buffer {
	if len(requested) == 0 {
		return stems
	}

	filtered := map[string]audio.Buffer{}
	for _, name := range requested {
		stem, ok := stems[name]
		if !ok {
			*warnings = append(*warnings, fmt.Sprintf("requested stem %s was not produced", name))
			continue
		}

		filtered[name] = stem
	}

	return filtered
}
