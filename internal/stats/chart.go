package stats

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"trackgym/internal/model"
)

// WriteRewardChart renders episode returns and their running mean as a
// standalone HTML page.
func WriteRewardChart(file, title string, episodes []model.EpisodeRecord) error {
	if len(episodes) == 0 {
		return errors.New("no episodes to chart")
	}

	x := make([]string, len(episodes))
	returns := make([]opts.LineData, len(episodes))
	running := make([]opts.LineData, len(episodes))
	sum := 0.0
	for i, episode := range episodes {
		sum += episode.Return
		x[i] = strconv.Itoa(episode.Index)
		returns[i] = opts.LineData{Value: episode.Return, Name: episode.Status}
		running[i] = opts.LineData{Value: sum / float64(i+1)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("episodes=%d", len(episodes))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "episode", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "return", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).
		AddSeries("return", returns).
		AddSeries("running mean", running,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		)

	page := components.NewPage()
	page.AddCharts(line)

	out, err := os.Create(file)
	if err != nil {
		return err
	}
	if err := page.Render(out); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
