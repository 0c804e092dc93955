// Package categorize assigns categories to imported transactions through
// a tiered cascade: learned merchants, then the static pattern table,
// then a local classifier, then remote models as a last resort.
package categorize

import (
	"math"
	"strings"

	"github.com/jbrukh/bayesian"

	"github.com/tech1ee/finuts/internal/dedup"
)

// minTrainingSamples gates the local classifier: below this it reports
// not-ready and the cascade skips straight to the remote tiers.
const minTrainingSamples = 10

// Sample is one historical description with its confirmed category.
type Sample struct {
	Description string
	Category    string
}

// LocalClassifier is a TF-IDF naive Bayes model over transaction
// description tokens. It trains in-process from the user's own history
// and costs nothing to query.
type LocalClassifier struct {
	cl      *bayesian.Classifier
	classes []bayesian.Class
	trained bool
}

// NewLocalClassifier creates a classifier over the given category names.
// At least two categories are required by the underlying model.
func NewLocalClassifier(categories []string) *LocalClassifier {
	if len(categories) < 2 {
		return &LocalClassifier{}
	}

	classes := make([]bayesian.Class, 0, len(categories))
	for _, c := range categories {
		classes = append(classes, bayesian.Class(c))
	}
	return &LocalClassifier{
		classes: classes,
		cl:      bayesian.NewClassifierTfIdf(classes...),
	}
}

// Train fits the model on confirmed history. Samples whose category is
// not a known class are skipped.
func (c *LocalClassifier) Train(samples []Sample) {
	if c.cl == nil {
		return
	}

	known := make(map[bayesian.Class]bool, len(c.classes))
	for _, cl := range c.classes {
		known[cl] = true
	}

	learned := 0
	for _, s := range samples {
		class := bayesian.Class(s.Category)
		if !known[class] {
			continue
		}
		terms := Tokenize(s.Description)
		if len(terms) == 0 {
			continue
		}
		c.cl.Learn(terms, class)
		learned++
	}

	if learned >= minTrainingSamples {
		c.cl.ConvertTermsFreqToTfIdf()
		c.trained = true
	}
}

// Ready reports whether the model has enough training data to be useful.
func (c *LocalClassifier) Ready() bool {
	return c.trained
}

// Classify predicts a category for the description. Confidence is the
// softmax weight of the winning class over the log scores, so a model
// that cannot separate the classes reports low confidence rather than
// guessing boldly.
func (c *LocalClassifier) Classify(description string) (category string, confidence float64, ok bool) {
	if !c.trained {
		return "", 0, false
	}

	terms := Tokenize(description)
	if len(terms) == 0 {
		return "", 0, false
	}

	scores, best, _ := c.cl.LogScores(terms)
	if len(scores) == 0 {
		return "", 0, false
	}

	maxScore := scores[0]
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}

	var sum float64
	for _, s := range scores {
		sum += math.Exp(s - maxScore)
	}
	confidence = math.Exp(scores[best]-maxScore) / sum

	return string(c.classes[best]), confidence, true
}

// Tokenize normalizes a description the same way duplicate detection
// does, so both features see the same token stream.
func Tokenize(description string) []string {
	return strings.Fields(dedup.NormalizeDescription(description))
}
