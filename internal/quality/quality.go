package quality

// Config holds quality evaluation configuration.
type Config struct {
	// ValidatorWeight and CoherenceWeight combine the two scores;
	// they should sum to 1.
	ValidatorWeight float64 `koanf:"validator_weight"`
	CoherenceWeight float64 `koanf:"coherence_weight"`

	// AcceptThreshold is the combined score a cleaned answer must
	// reach to be accepted without a retry.
	AcceptThreshold float64 `koanf:"accept_threshold"`
}

// DefaultConfig returns the defaults used in production.
func DefaultConfig() Config {
	return Config{
		ValidatorWeight: 0.4,
		CoherenceWeight: 0.6,
		AcceptThreshold: 0.7,
	}
}

// Assessment is the outcome of evaluating one raw completion.
type Assessment struct {
	// Cleaned is the answer after artifact removal.
	Cleaned string

	// Score is the weighted combination of validator and coherence
	// scores, in [0,1].
	Score float64

	// Accepted reports whether Score cleared the threshold.
	Accepted bool

	Issues []string
}

// Evaluator cleans and scores completions.
type Evaluator struct {
	cfg       Config
	cleaner   *Cleaner
	validator *Validator
	checker   *CoherenceChecker
}

// NewEvaluator builds an evaluator; zero weights fall back to defaults.
func NewEvaluator(cfg Config) *Evaluator {
	def := DefaultConfig()
	if cfg.ValidatorWeight <= 0 && cfg.CoherenceWeight <= 0 {
		cfg.ValidatorWeight = def.ValidatorWeight
		cfg.CoherenceWeight = def.CoherenceWeight
	}
	if cfg.AcceptThreshold <= 0 {
		cfg.AcceptThreshold = def.AcceptThreshold
	}
	return &Evaluator{
		cfg:       cfg,
		cleaner:   NewCleaner(),
		validator: NewValidator(),
		checker:   NewCoherenceChecker(),
	}
}

// Evaluate cleans a raw completion and scores the result against the
// question. sources carry retrieved snippets for factuality checks.
func (e *Evaluator) Evaluate(raw, query string, sources []string) Assessment {
	cleaned := e.cleaner.Clean(raw)
	if cleaned == "" {
		return Assessment{Cleaned: "", Score: 0, Accepted: false}
	}

	_, validatorScore := e.validator.Validate(cleaned)
	coherence := e.checker.Check(cleaned, query, sources)

	score := validatorScore*e.cfg.ValidatorWeight + coherence.Overall*e.cfg.CoherenceWeight

	return Assessment{
		Cleaned:  cleaned,
		Score:    score,
		Accepted: score >= e.cfg.AcceptThreshold,
		Issues:   coherence.Issues,
	}
}

// Threshold exposes the configured accept threshold.
func (e *Evaluator) Threshold() float64 {
	return e.cfg.AcceptThreshold
}
