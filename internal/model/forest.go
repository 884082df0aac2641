// Package model loads a serialized random-forest classifier and evaluates
// it. The artifact is a JSON file exported at training time: the ordered
// feature list plus one flattened node array per tree. Leaves carry the
// positive-class probability; the forest prediction is the mean over trees.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrSchemaMismatch reports a model trained on a different feature set than
// the one the service builds.
var ErrSchemaMismatch = errors.New("model feature schema mismatch")

// Classifier scores a feature vector and attributes the score to features.
type Classifier interface {
	PredictProba(vector []float64) (float64, error)
	Attributions(vector []float64) ([]float64, error)
	FeatureNames() []string
}

// node is one decision node in the flattened tree array. Feature -1 marks a
// leaf; interior nodes route left on value <= threshold.
type node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

// Forest is a random-forest classifier loaded from a JSON artifact.
type Forest struct {
	featureNames []string
	trees        []tree
}

type artifact struct {
	Features []string `json:"features"`
	Trees    []tree   `json:"trees"`
}

// Load reads and validates a forest artifact. expectedFeatures is the
// feature schema the service builds; a mismatch in order or content fails
// the load so a stale model never serves predictions.
func Load(path string, expectedFeatures []string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	if len(a.Trees) == 0 {
		return nil, fmt.Errorf("model artifact %s has no trees", path)
	}

	if len(a.Features) != len(expectedFeatures) {
		return nil, fmt.Errorf("%w: model has %d features, service builds %d",
			ErrSchemaMismatch, len(a.Features), len(expectedFeatures))
	}
	for i, name := range expectedFeatures {
		if a.Features[i] != name {
			return nil, fmt.Errorf("%w: position %d is %q in model, %q in service",
				ErrSchemaMismatch, i, a.Features[i], name)
		}
	}

	for ti, t := range a.Trees {
		if err := validateTree(t, len(a.Features)); err != nil {
			return nil, fmt.Errorf("model tree %d: %w", ti, err)
		}
	}

	return &Forest{featureNames: a.Features, trees: a.Trees}, nil
}

func validateTree(t tree, featureCount int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature == -1 {
			continue
		}
		if n.Feature < 0 || n.Feature >= featureCount {
			return fmt.Errorf("node %d references feature %d, have %d", i, n.Feature, featureCount)
		}
		if n.Left < 0 || n.Left >= len(t.Nodes) || n.Right < 0 || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has child out of range", i)
		}
		if n.Left <= i || n.Right <= i {
			return fmt.Errorf("node %d has non-forward child link", i)
		}
	}
	return nil
}

// FeatureNames returns the model's ordered feature schema.
func (f *Forest) FeatureNames() []string {
	return f.featureNames
}

// PredictProba returns the positive-class probability in [0, 1]: the mean
// leaf value across trees.
func (f *Forest) PredictProba(vector []float64) (float64, error) {
	if len(vector) != len(f.featureNames) {
		return 0, fmt.Errorf("%w: vector has %d values, model expects %d",
			ErrSchemaMismatch, len(vector), len(f.featureNames))
	}

	var sum float64
	for _, t := range f.trees {
		sum += t.evaluate(vector)
	}
	return sum / float64(len(f.trees)), nil
}

// Attributions returns each feature's contribution to the prediction via
// path attribution: walking a tree from root to leaf, the change in expected
// value at each split is credited to the feature that made the split. The
// per-feature contributions plus the forest's base rate sum to the
// prediction exactly.
func (f *Forest) Attributions(vector []float64) ([]float64, error) {
	if len(vector) != len(f.featureNames) {
		return nil, fmt.Errorf("%w: vector has %d values, model expects %d",
			ErrSchemaMismatch, len(vector), len(f.featureNames))
	}

	contrib := make([]float64, len(f.featureNames))
	for _, t := range f.trees {
		t.attribute(vector, contrib)
	}
	scale := 1 / float64(len(f.trees))
	for i := range contrib {
		contrib[i] *= scale
	}
	return contrib, nil
}

// evaluate walks the tree to a leaf and returns its value.
func (t tree) evaluate(vector []float64) float64 {
	i := 0
	for t.Nodes[i].Feature != -1 {
		n := t.Nodes[i]
		if vector[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// attribute adds this tree's per-feature contributions into contrib.
func (t tree) attribute(vector []float64, contrib []float64) {
	i := 0
	current := t.expectedValue(i)
	for t.Nodes[i].Feature != -1 {
		n := t.Nodes[i]
		if vector[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		next := t.expectedValue(i)
		contrib[n.Feature] += next - current
		current = next
	}
}

// expectedValue returns the mean leaf value of the subtree rooted at i.
// Trees are shallow enough that recomputing beats carrying weights in the
// artifact.
func (t tree) expectedValue(i int) float64 {
	n := t.Nodes[i]
	if n.Feature == -1 {
		return n.Value
	}
	return (t.expectedValue(n.Left) + t.expectedValue(n.Right)) / 2
}
