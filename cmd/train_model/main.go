package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flightdash/app"
	"flightdash/config"
	"flightdash/db"
	"flightdash/logger"
	"flightdash/pipeline"
	"flightdash/predictor"
	"flightdash/store"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	dataset := flag.String("dataset", "", "dataset CSV, overrides dataset.path")
	modelDir := flag.String("model_dir", "", "bundle output directory, overrides ml.model_dir")
	modelType := flag.String("model_type", "", "random_forest or decision_tree, overrides ml.model_type")
	numTrees := flag.Int("trees", 0, "trees per forest, overrides ml.num_trees")
	maxDepth := flag.Int("max_depth", 0, "max tree depth, overrides ml.max_depth")
	testRatio := flag.Float64("test_ratio", 0, "held-out fraction, overrides ml.test_ratio")
	record := flag.Bool("record", true, "append the run to the training log database")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.Locate()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *dataset != "" {
		cfg.Dataset.Path = *dataset
	}
	if *modelDir != "" {
		cfg.ML.ModelDir = *modelDir
	}
	if *modelType != "" {
		cfg.ML.ModelType = *modelType
	}
	if *numTrees > 0 {
		cfg.ML.NumTrees = *numTrees
	}
	if *maxDepth > 0 {
		cfg.ML.MaxDepth = *maxDepth
	}
	if *testRatio > 0 {
		cfg.ML.TestRatio = *testRatio
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	st, err := store.Load(cfg.Dataset.Path, pipeline.LoadOptions{Encoding: cfg.Dataset.Encoding, Logger: lg})
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}

	p := predictor.New(st, app.PredictorOptions(cfg.ML, lg))
	report, err := p.TrainAll()
	if err != nil {
		log.Fatalf("failed to train models: %v", err)
	}

	if err := p.Save(cfg.ML.ModelDir); err != nil {
		log.Fatalf("failed to save model bundle: %v", err)
	}

	if *record {
		if err := recordRun(cfg.Database.Path, report); err != nil {
			lg.Warn("training log not recorded", zap.Error(err))
		}
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode report: %v", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	fmt.Printf("model bundle saved to %s\n", cfg.ML.ModelDir)
}

func recordRun(path string, report predictor.TrainingReport) error {
	d, err := db.Open(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.SaveTrainingReport(context.Background(), uuid.NewString(), report)
}
