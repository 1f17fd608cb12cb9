package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"obesityserve/ml"
)

// CleaningRule inspects a sample and may fill in derived fields. A non-nil
// error rejects the sample.
type CleaningRule interface {
	Apply(*Sample) error
	Name() string
}

// QualityIssue is one rejected row.
type QualityIssue struct {
	Rule    string `json:"rule"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// CleaningStats counts what a cleaner has seen.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
}

// DataCleaner runs its rules in order and stops at the first rejection.
type DataCleaner struct {
	rules  []CleaningRule
	logger *zap.Logger

	mu    sync.Mutex
	stats CleaningStats
}

// NewDataCleaner validates records, checks labels against classes and drops
// exact duplicate rows.
func NewDataCleaner(classes []string, logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	dc := &DataCleaner{
		logger: logger,
		stats:  CleaningStats{Issues: make(map[string]int64)},
	}
	dc.AddRule(RecordValidationRule{})
	dc.AddRule(NewLabelRule(classes))
	dc.AddRule(NewDuplicateRule())
	return dc
}

func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean returns the samples every rule accepted, in input order.
func (dc *DataCleaner) Clean(samples []*Sample) ([]*Sample, []QualityIssue) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	var (
		cleaned []*Sample
		issues  []QualityIssue
	)
	for _, s := range samples {
		dc.stats.TotalProcessed++
		if issue, ok := dc.apply(s); !ok {
			dc.stats.Rejected++
			dc.stats.Issues[issue.Rule]++
			issues = append(issues, issue)
			continue
		}
		dc.stats.Passed++
		cleaned = append(cleaned, s)
	}
	return cleaned, issues
}

func (dc *DataCleaner) apply(s *Sample) (QualityIssue, bool) {
	for _, rule := range dc.rules {
		if err := rule.Apply(s); err != nil {
			return QualityIssue{Rule: rule.Name(), Line: s.Line, Message: err.Error()}, false
		}
	}
	return QualityIssue{}, true
}

func (dc *DataCleaner) GetStats() CleaningStats {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// RecordValidationRule applies the same constraints as the prediction API.
type RecordValidationRule struct{}

func (RecordValidationRule) Name() string { return "record" }

func (RecordValidationRule) Apply(s *Sample) error {
	rec, err := ml.Validate(s.Input)
	if err != nil {
		var verr *ml.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("invalid fields %s", strings.Join(fieldNames(verr), ", "))
		}
		return err
	}
	s.Record = rec
	return nil
}

func fieldNames(verr *ml.ValidationError) []string {
	names := make([]string, len(verr.Errors))
	for i, fe := range verr.Errors {
		names[i] = fe.Field
	}
	return names
}

// LabelRule rejects rows whose target is not a known class.
type LabelRule struct {
	classes []string
}

func NewLabelRule(classes []string) *LabelRule {
	return &LabelRule{classes: slices.Clone(classes)}
}

func (r *LabelRule) Name() string { return "label" }

func (r *LabelRule) Apply(s *Sample) error {
	if !slices.Contains(r.classes, s.Label) {
		return fmt.Errorf("unknown class %q", s.Label)
	}
	return nil
}

// DuplicateRule keeps the first of several identical rows.
type DuplicateRule struct {
	seen map[string]int
}

func NewDuplicateRule() *DuplicateRule {
	return &DuplicateRule{seen: make(map[string]int)}
}

func (r *DuplicateRule) Name() string { return "duplicate" }

func (r *DuplicateRule) Apply(s *Sample) error {
	key := strings.Join(s.raw, "\x1f")
	if first, ok := r.seen[key]; ok {
		return fmt.Errorf("duplicate of line %d", first)
	}
	r.seen[key] = s.Line
	return nil
}
