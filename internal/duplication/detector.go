package duplication

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/logging"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

// Detector runs every analyzer against every retrieved candidate. It carries
// no per-call state; concurrent calls are safe.
type Detector struct {
	cfg       Config
	retriever CandidateRetriever
	analyzers []Analyzer
	logger    logging.Logger
}

// Option customizes a Detector
type Option func(*Detector)

// WithAnalyzers replaces the default six scenarios
func WithAnalyzers(analyzers ...Analyzer) Option {
	return func(d *Detector) { d.analyzers = analyzers }
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDetector validates cfg and builds a detector over retriever
func NewDetector(cfg Config, retriever CandidateRetriever, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if retriever == nil {
		return nil, apperrors.ConfigInvalid("candidate retriever is required")
	}
	d := &Detector{
		cfg:       cfg,
		retriever: retriever,
		analyzers: DefaultAnalyzers(cfg),
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("duplication")
	return d, nil
}

// Config returns the detection policy in use
func (d *Detector) Config() Config { return d.cfg }

// AnalyzeForDuplicates retrieves candidates for inv and aggregates every
// scenario match. When retrieval fails or times out the result is
// INDETERMINATE and the error is returned alongside it.
func (d *Detector) AnalyzeForDuplicates(ctx context.Context, inv *models.InvoiceRecord) (*models.DuplicateAnalysisResult, error) {
	start := time.Now()

	rctx, cancel := context.WithTimeout(ctx, d.cfg.RetrievalTimeout)
	candidates, err := d.retriever.RetrieveCandidates(rctx, inv, d.cfg.Filters)
	cancel()
	if err != nil {
		appErr := apperrors.Wrap(err, apperrors.CodeRetrievalFailed, "candidate retrieval failed")
		d.logger.Warn("duplicate analysis indeterminate",
			logging.String("invoice_id", inv.ID),
			logging.Err(err),
		)
		return Indeterminate(inv, appErr), appErr
	}

	matches, err := d.Compare(ctx, inv, candidates)
	if err != nil {
		return Indeterminate(inv, err), err
	}

	result := Aggregate(inv, matches, d.cfg.Thresholds)
	result.CandidatesCompared = len(candidates)

	d.logger.Info("duplicate analysis complete",
		logging.String("invoice_id", inv.ID),
		logging.Int("candidates", len(candidates)),
		logging.Int("matches", len(result.Matches)),
		logging.Float64("confidence", *result.Confidence),
		logging.String("action", string(result.RecommendedAction)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// Compare runs all analyzers over candidates with at most cfg.Workers
// candidates in flight. Match order is not meaningful until Aggregate sorts it.
func (d *Detector) Compare(ctx context.Context, inv *models.InvoiceRecord, candidates []models.InvoiceRecord) ([]models.DuplicateMatch, error) {
	perCandidate := make([][]models.DuplicateMatch, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perCandidate[i] = d.analyzeCandidate(inv, &candidates[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var matches []models.DuplicateMatch
	for _, ms := range perCandidate {
		matches = append(matches, ms...)
	}
	return matches, nil
}

func (d *Detector) analyzeCandidate(inv, candidate *models.InvoiceRecord) []models.DuplicateMatch {
	var out []models.DuplicateMatch
	for _, a := range d.analyzers {
		if m := a.Analyze(inv, candidate); m != nil {
			out = append(out, *m)
		}
	}
	return out
}
