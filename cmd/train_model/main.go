// Command train_model fits a decision tree on the labelled survey CSV and
// writes an artifact the server can load.
package main

import (
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"go.uber.org/zap"

	"obesityserve/logging"
	"obesityserve/ml"
	"obesityserve/pipeline"
)

type options struct {
	data      string
	out       string
	version   string
	maxDepth  int
	minLeaf   int
	testRatio float64
	seed      uint64
}

func main() {
	var opts options
	flag.StringVar(&opts.data, "data", "", "labelled dataset CSV")
	flag.StringVar(&opts.out, "out", "models/obesity_model.json", "artifact output path")
	flag.StringVar(&opts.version, "version", "", "artifact version (default derived from the date)")
	flag.IntVar(&opts.maxDepth, "max_depth", 8, "max tree depth")
	flag.IntVar(&opts.minLeaf, "min_leaf", 1, "minimum samples per leaf")
	flag.Float64Var(&opts.testRatio, "test_ratio", 0.2, "held out share of the dataset")
	flag.Uint64Var(&opts.seed, "seed", 42, "shuffle seed")
	debug := flag.Bool("debug", false, "development logging")
	flag.Parse()

	logger, _, err := logging.New(logging.Config{Level: "info", Development: *debug})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if opts.data == "" {
		logger.Fatal("-data is required")
	}
	if opts.version == "" {
		opts.version = time.Now().UTC().Format("2006.01.02") + "-tree"
	}

	ev, err := run(opts, logger)
	if err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}
	logger.Info("model saved",
		zap.String("path", opts.out),
		zap.String("version", opts.version),
		zap.Float64("accuracy", ev.Accuracy),
		zap.Float64("macro_precision", ev.MacroPrecision),
		zap.Float64("macro_recall", ev.MacroRecall))
}

func run(opts options, logger *zap.Logger) (ml.Evaluation, error) {
	f, err := os.Open(opts.data)
	if err != nil {
		return ml.Evaluation{}, err
	}
	defer f.Close()

	samples, parseIssues, err := pipeline.ReadCSV(f)
	if err != nil {
		return ml.Evaluation{}, err
	}
	cleaner := pipeline.NewDataCleaner(ml.ObesityLevels, logger)
	samples, issues := cleaner.Clean(samples)
	for _, issue := range append(parseIssues, issues...) {
		logger.Debug("row rejected", zap.Int("line", issue.Line), zap.String("rule", issue.Rule), zap.String("reason", issue.Message))
	}
	stats := cleaner.GetStats()
	logger.Info("dataset cleaned",
		zap.Int("unparsable", len(parseIssues)),
		zap.Int64("passed", stats.Passed),
		zap.Int64("rejected", stats.Rejected),
		zap.Any("rejected_by_rule", stats.Issues))

	featureNames := ml.CanonicalFeatureNames()
	vectors, labels, err := encodeSamples(samples, featureNames)
	if err != nil {
		return ml.Evaluation{}, err
	}
	trainX, trainY, testX, testY := splitDataset(vectors, labels, opts.testRatio, opts.seed)
	if len(trainX) == 0 || len(testX) == 0 {
		return ml.Evaluation{}, fmt.Errorf("%d usable samples are too few to split", len(vectors))
	}

	rows := make([][]float64, len(trainX))
	for i, v := range trainX {
		rows[i] = v.Values()
	}
	classCount := len(ml.ObesityLevels)
	tree, err := ml.TrainDecisionTree(rows, trainY, classCount, ml.TreeOptions{
		MaxDepth:       opts.maxDepth,
		MinSamplesLeaf: opts.minLeaf,
	})
	if err != nil {
		return ml.Evaluation{}, err
	}
	logger.Info("tree trained", zap.Int("train", len(trainX)), zap.Int("nodes", len(tree.Nodes)))

	ev, err := ml.Evaluate(tree, testX, testY, classCount)
	if err != nil {
		return ml.Evaluation{}, err
	}

	artifact, err := ml.NewArtifact(opts.version, ml.ModelDecisionTree, featureNames, ml.ObesityLevels, ml.DefaultEncoder(), tree)
	if err != nil {
		return ml.Evaluation{}, err
	}
	if err := ml.SaveArtifact(opts.out, artifact); err != nil {
		return ml.Evaluation{}, err
	}
	return ev, nil
}

func encodeSamples(samples []*pipeline.Sample, featureNames []string) ([]ml.FeatureVector, []int, error) {
	index := make(map[string]int, len(ml.ObesityLevels))
	for i, class := range ml.ObesityLevels {
		index[class] = i
	}
	vectors := make([]ml.FeatureVector, 0, len(samples))
	labels := make([]int, 0, len(samples))
	for _, s := range samples {
		v, err := ml.Encode(s.Record, featureNames)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", s.Line, err)
		}
		label, ok := index[s.Label]
		if !ok {
			return nil, nil, fmt.Errorf("line %d: unknown class %q", s.Line, s.Label)
		}
		vectors = append(vectors, v)
		labels = append(labels, label)
	}
	if len(vectors) == 0 {
		return nil, nil, errors.New("no usable samples")
	}
	return vectors, labels, nil
}

func splitDataset(vectors []ml.FeatureVector, labels []int, testRatio float64, seed uint64) (trainX []ml.FeatureVector, trainY []int, testX []ml.FeatureVector, testY []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	order := rand.New(rand.NewPCG(seed, seed)).Perm(len(vectors))
	testSize := int(float64(len(vectors)) * testRatio)
	for i, idx := range order {
		if i < testSize {
			testX = append(testX, vectors[idx])
			testY = append(testY, labels[idx])
			continue
		}
		trainX = append(trainX, vectors[idx])
		trainY = append(trainY, labels[idx])
	}
	return trainX, trainY, testX, testY
}
