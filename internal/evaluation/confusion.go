// Package evaluation accumulates the epoch confusion matrix and derives the
// reported classification metrics.
//
// Label 0 is the counted "positive" class: a prediction of 0 on a true 0 is a
// true positive and a prediction of 1 on a true 1 is a true negative.
package evaluation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// PositiveLabel is the label counted as positive in the confusion matrix.
const PositiveLabel = 0

// Confusion holds the binary confusion counts for one epoch.
type Confusion struct {
	TP, TN, FP, FN int
}

// Add buckets one prediction against its true label.
func (c *Confusion) Add(pred, truth int) {
	switch {
	case pred == PositiveLabel && truth == PositiveLabel:
		c.TP++
	case pred != PositiveLabel && truth != PositiveLabel:
		c.TN++
	case pred == PositiveLabel:
		c.FP++
	default:
		c.FN++
	}
}

// Total is the number of bucketed predictions.
func (c Confusion) Total() int {
	return c.TP + c.TN + c.FP + c.FN
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Accuracy is (TP+TN)/total, 0 for an empty matrix.
func (c Confusion) Accuracy() float64 {
	return ratio(c.TP+c.TN, c.Total())
}

// Precision is TP/(TP+FP), 0 when nothing was predicted positive.
func (c Confusion) Precision() float64 {
	return ratio(c.TP, c.TP+c.FP)
}

// Recall is TP/(TP+FN), 0 when no positive was present.
func (c Confusion) Recall() float64 {
	return ratio(c.TP, c.TP+c.FN)
}

// F1 is the harmonic mean of precision and recall, 0 when both are 0.
func (c Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// AUC returns the area under the ROC curve of scores (the class-1 probability)
// against labels, with label 1 as the positive class. ok is false when fewer
// than two classes are present.
func AUC(scores []float64, labels []int) (auc float64, ok bool) {
	if len(scores) != len(labels) || len(scores) == 0 {
		return 0, false
	}

	y := make([]float64, len(scores))
	copy(y, scores)
	classes := make([]bool, len(labels))
	var pos int
	for i, l := range labels {
		classes[i] = l == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return 0, false
	}

	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	auc = integrate.Trapezoidal(fpr, tpr)
	if math.IsNaN(auc) {
		return 0, false
	}
	return auc, true
}

// Report is the metric summary of one evaluation pass.
type Report struct {
	Confusion
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	AUC       *float64
}

// NewReport derives every metric from the confusion counts and the collected
// class-1 probabilities.
func NewReport(c Confusion, scores []float64, labels []int) Report {
	r := Report{
		Confusion: c,
		Accuracy:  c.Accuracy(),
		Precision: c.Precision(),
		Recall:    c.Recall(),
		F1:        c.F1(),
	}
	if auc, ok := AUC(scores, labels); ok {
		r.AUC = &auc
	}
	return r
}

// History keeps the per-epoch metric lists, accuracy/precision/recall/F1 as
// percentages rounded to 2 decimals and AUC rounded to 3.
type History struct {
	Accuracy  []float64
	Precision []float64
	Recall    []float64
	F1        []float64
	AUC       []float64
}

// Append records one epoch. An undefined AUC is stored as NaN.
func (h *History) Append(r Report) {
	h.Accuracy = append(h.Accuracy, round(100*r.Accuracy, 2))
	h.Precision = append(h.Precision, round(100*r.Precision, 2))
	h.Recall = append(h.Recall, round(100*r.Recall, 2))
	h.F1 = append(h.F1, round(100*r.F1, 2))
	auc := math.NaN()
	if r.AUC != nil {
		auc = round(*r.AUC, 3)
	}
	h.AUC = append(h.AUC, auc)
}

// Len returns the number of recorded epochs.
func (h *History) Len() int {
	return len(h.Accuracy)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// FormatPercents renders a percentage list like "[85.00% 90.12%]".
func FormatPercents(vs []float64) string {
	s := "["
	for i, v := range vs {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%.2f%%", v)
	}
	return s + "]"
}
