package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
)

const (
	defaultMaxDepth   = 10
	defaultCandidates = 32
	thresholdSample   = 256
)

type TreeConfig struct {
	Task            Task  `json:"task"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	MaxFeatures     int   `json:"max_features"`
	Candidates      int   `json:"candidates"`
	Seed            int64 `json:"seed"`
}

func (c TreeConfig) withDefaults(numFeatures int) TreeConfig {
	if c.Task == "" {
		c.Task = TaskRegression
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = defaultMaxDepth
	}
	if c.MinSamplesSplit < 2 {
		c.MinSamplesSplit = 2
	}
	if c.MinSamplesLeaf < 1 {
		c.MinSamplesLeaf = 1
	}
	if c.MaxFeatures <= 0 || c.MaxFeatures > numFeatures {
		c.MaxFeatures = numFeatures
	}
	if c.Candidates <= 0 {
		c.Candidates = defaultCandidates
	}
	return c
}

// DecisionTree is a CART tree stored as a flat node slice. Leaves hold the
// mean target of their rows, which for 0/1 targets is the positive fraction.
type DecisionTree struct {
	Config      TreeConfig `json:"config"`
	NumFeatures int        `json:"num_features"`
	Nodes       []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	Samples    int     `json:"samples"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewDecisionTree(cfg TreeConfig) *DecisionTree {
	return &DecisionTree{Config: cfg}
}

func (dt *DecisionTree) Trained() bool {
	return len(dt.Nodes) > 0
}

func (dt *DecisionTree) Fit(features [][]float64, targets []float64) error {
	rows := make([]int, len(features))
	for i := range rows {
		rows[i] = i
	}
	return dt.fitRows(features, targets, rows)
}

func (dt *DecisionTree) fitRows(features [][]float64, targets []float64, rows []int) error {
	if dt.Trained() {
		return ErrAlreadyFitted
	}
	if err := validateTrainingData(features, targets); err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.New("no rows to fit")
	}

	dt.NumFeatures = len(features[0])
	dt.Config = dt.Config.withDefaults(dt.NumFeatures)

	b := &treeBuilder{
		features: features,
		targets:  targets,
		cfg:      dt.Config,
		rng:      rand.New(rand.NewSource(dt.Config.Seed)),
	}
	b.build(rows, 0)
	dt.Nodes = b.nodes
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != dt.NumFeatures {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureMismatch, len(features), dt.NumFeatures)
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) PredictClass(features []float64) (bool, error) {
	p, err := dt.Predict(features)
	if err != nil {
		return false, err
	}
	return p > 0.5, nil
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.Nodes) == 0 {
		return ErrNotTrained
	}
	payload, err := json.Marshal(dt)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded DecisionTree
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return err
	}
	if len(loaded.Nodes) == 0 {
		return fmt.Errorf("%s: %w", path, ErrNotTrained)
	}
	*dt = loaded
	return nil
}

type treeBuilder struct {
	features [][]float64
	targets  []float64
	cfg      TreeConfig
	rng      *rand.Rand
	nodes    []TreeNode
}

// build appends the subtree for rows and returns the index of its root.
func (b *treeBuilder) build(rows []int, depth int) int {
	mean, sse := b.summarize(rows)
	idx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      mean,
		Samples:    len(rows),
		IsLeaf:     true,
	})
	if depth >= b.cfg.MaxDepth || len(rows) < b.cfg.MinSamplesSplit || sse <= 1e-12 {
		return idx
	}

	feature, threshold, ok := b.findBestSplit(rows, sse)
	if !ok {
		return idx
	}
	left, right := partition(b.features, rows, feature, threshold)
	if len(left) < b.cfg.MinSamplesLeaf || len(right) < b.cfg.MinSamplesLeaf {
		return idx
	}

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)

	node := &b.nodes[idx]
	node.FeatureIdx = feature
	node.Threshold = threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.IsLeaf = false
	return idx
}

func (b *treeBuilder) summarize(rows []int) (mean, sse float64) {
	var sum, sq float64
	for _, r := range rows {
		y := b.targets[r]
		sum += y
		sq += y * y
	}
	n := float64(len(rows))
	if n == 0 {
		return 0, 0
	}
	return sum / n, sq - sum*sum/n
}

// findBestSplit minimizes the summed squared error of both children. For
// 0/1 targets this is proportional to the weighted gini impurity.
func (b *treeBuilder) findBestSplit(rows []int, parentSSE float64) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestSSE := parentSSE - 1e-12
	minLeaf := float64(b.cfg.MinSamplesLeaf)
	n := float64(len(rows))

	for _, featureIdx := range b.candidateFeatures() {
		thresholds := b.thresholds(rows, featureIdx)
		if len(thresholds) == 0 {
			continue
		}

		k := len(thresholds)
		cnt := make([]float64, k+1)
		sum := make([]float64, k+1)
		sq := make([]float64, k+1)
		var totalSum, totalSq float64
		for _, r := range rows {
			x := b.features[r][featureIdx]
			y := b.targets[r]
			i := sort.SearchFloat64s(thresholds, x)
			cnt[i]++
			sum[i] += y
			sq[i] += y * y
			totalSum += y
			totalSq += y * y
		}

		var lc, ls, lq float64
		for i := 0; i < k; i++ {
			lc += cnt[i]
			ls += sum[i]
			lq += sq[i]
			rc := n - lc
			if lc < minLeaf || rc < minLeaf {
				continue
			}
			rs := totalSum - ls
			rq := totalSq - lq
			sse := (lq - ls*ls/lc) + (rq - rs*rs/rc)
			if sse < bestSSE {
				bestSSE = sse
				bestFeature = featureIdx
				bestThreshold = thresholds[i]
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (b *treeBuilder) candidateFeatures() []int {
	p := len(b.features[0])
	if b.cfg.MaxFeatures >= p {
		all := make([]int, p)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(p)[:b.cfg.MaxFeatures]
}

// thresholds returns ascending distinct split candidates taken as quantiles
// of a row sample.
func (b *treeBuilder) thresholds(rows []int, featureIdx int) []float64 {
	var values []float64
	if len(rows) <= thresholdSample {
		values = make([]float64, len(rows))
		for i, r := range rows {
			values[i] = b.features[r][featureIdx]
		}
	} else {
		values = make([]float64, thresholdSample)
		for i := range values {
			values[i] = b.features[rows[b.rng.Intn(len(rows))]][featureIdx]
		}
	}
	sort.Float64s(values)

	picked := values
	if len(values) > b.cfg.Candidates {
		picked = make([]float64, 0, b.cfg.Candidates)
		for i := 1; i <= b.cfg.Candidates; i++ {
			picked = append(picked, values[i*len(values)/(b.cfg.Candidates+1)])
		}
	}

	out := make([]float64, 0, len(picked))
	for _, v := range picked {
		if len(out) == 0 || v > out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func partition(features [][]float64, rows []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(rows)/2)
	right := make([]int, 0, len(rows)/2)
	for _, r := range rows {
		if features[r][featureIdx] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	return left, right
}

func validateTrainingData(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature vectors are empty")
	}
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrFeatureMismatch, i, len(row), width)
		}
	}
	return nil
}
