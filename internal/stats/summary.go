package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"trackgym/internal/model"
)

// Summary aggregates the episodes of one run.
type Summary struct {
	Episodes     int            `json:"episodes"`
	ReturnMean   float64        `json:"return_mean"`
	ReturnStd    float64        `json:"return_std"`
	ReturnMin    float64        `json:"return_min"`
	ReturnMax    float64        `json:"return_max"`
	StepsMean    float64        `json:"steps_mean"`
	StepsStd     float64        `json:"steps_std"`
	ProgressMean float64        `json:"progress_mean"`
	Failures     int            `json:"failures"`
	Successes    int            `json:"successes"`
	Truncations  int            `json:"truncations"`
	FailureRate  float64        `json:"failure_rate"`
	Accidents    map[string]int `json:"accidents,omitempty"`
}

func Summarize(episodes []model.EpisodeRecord) Summary {
	summary := Summary{Episodes: len(episodes)}
	if len(episodes) == 0 {
		return summary
	}

	returns := make([]float64, len(episodes))
	steps := make([]float64, len(episodes))
	progress := make([]float64, len(episodes))
	for i, episode := range episodes {
		returns[i] = episode.Return
		steps[i] = float64(episode.Steps)
		progress[i] = episode.Progress

		switch episode.Status {
		case "failure":
			summary.Failures++
		case "success":
			summary.Successes++
		case "truncated":
			summary.Truncations++
		}
		for _, kind := range episode.Accidents {
			if summary.Accidents == nil {
				summary.Accidents = make(map[string]int)
			}
			summary.Accidents[kind]++
		}
	}

	summary.ReturnMean, summary.ReturnStd = meanStd(returns)
	summary.ReturnMin = floats.Min(returns)
	summary.ReturnMax = floats.Max(returns)
	summary.StepsMean, summary.StepsStd = meanStd(steps)
	summary.ProgressMean = stat.Mean(progress, nil)
	summary.FailureRate = float64(summary.Failures) / float64(len(episodes))
	return summary
}

// AccidentKinds lists accident kinds seen in the summary in name order.
func (s Summary) AccidentKinds() []string {
	kinds := make([]string, 0, len(s.Accidents))
	for kind := range s.Accidents {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 1 {
		return values[0], 0
	}
	mean, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}
