// Package treemap renders a market snapshot as a standalone plotly.js
// treemap page.
package treemap

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"sort"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// RootLabel is the label of the tree's root node.
const RootLabel = "S&P 500"

// ColorRange is the proportion change mapped onto the full color scale.
// Moves beyond it saturate.
const ColorRange = 0.03

// SectorColor fills sector boxes regardless of their move.
const SectorColor = "rgb(40,40,40)"

// PlotlyCDN is the script the page loads plotly.js from.
const PlotlyCDN = "https://cdn.plot.ly/plotly-2.35.2.min.js"

type stop struct {
	at      float64
	r, g, b float64
}

var scale = []stop{
	{0.0, 180, 0, 0},
	{0.25, 255, 160, 122},
	{0.5, 230, 230, 230},
	{0.75, 144, 238, 144},
	{1.0, 0, 150, 0},
}

// Color maps a proportion change (0.01 = +1%) onto the red/grey/green scale.
func Color(proportion float64) string {
	if math.IsNaN(proportion) {
		proportion = 0
	}
	p := math.Max(-ColorRange, math.Min(ColorRange, proportion))
	t := (p + ColorRange) / (2 * ColorRange)

	for i := 1; i < len(scale); i++ {
		lo, hi := scale[i-1], scale[i]
		if t > hi.at {
			continue
		}
		f := (t - lo.at) / (hi.at - lo.at)
		return fmt.Sprintf("rgb(%d,%d,%d)",
			int(math.Round(lo.r+f*(hi.r-lo.r))),
			int(math.Round(lo.g+f*(hi.g-lo.g))),
			int(math.Round(lo.b+f*(hi.b-lo.b))),
		)
	}
	last := scale[len(scale)-1]
	return fmt.Sprintf("rgb(%d,%d,%d)", int(last.r), int(last.g), int(last.b))
}

// FormatMarketCap renders a dollar amount in trillions at or above $1T and in
// billions otherwise.
func FormatMarketCap(v float64) string {
	if v >= 1e12 {
		return fmt.Sprintf("$%.2fT", v/1e12)
	}
	return fmt.Sprintf("$%.2fB", v/1e9)
}

// FormatTotalMarketCap renders the index total, always in trillions.
func FormatTotalMarketCap(v float64) string {
	return fmt.Sprintf("$%.2fT", v/1e12)
}

// Options controls the tree shape and root annotations.
type Options struct {
	// UseIndustry inserts a sub-industry level between sector and symbol.
	UseIndustry bool
	// IndexChange is the index's own percent move, shown on the root.
	IndexChange *float64
}

// Figure is the plotly trace data for one treemap.
type Figure struct {
	IDs        []string  `json:"ids"`
	Labels     []string  `json:"labels"`
	Parents    []string  `json:"parents"`
	Values     []float64 `json:"values"`
	Colors     []string  `json:"colors"`
	HoverTexts []string  `json:"hovertext"`
	Levels     []int     `json:"-"`
}

type node struct {
	id, label, parent string
	level             int
	value             float64
	change            float64
	weightedChange    float64
	weight            float64
	hover             string
	leaf              bool
}

// Build lays out the snapshot as Root -> Sector -> [Sub-Industry ->] Symbol.
// Leaves are sized by share of total market cap. Parents carry value 0 and
// are sized by plotly from their children.
func Build(snap domain.MarketSnapshot, opts Options) Figure {
	root := &node{id: RootLabel, label: RootLabel, level: 0}
	nodes := []*node{root}
	byID := map[string]*node{root.id: root}

	branch := func(id, label, parent string, level int) *node {
		if n, ok := byID[id]; ok {
			return n
		}
		n := &node{id: id, label: label, parent: parent, level: level}
		byID[id] = n
		nodes = append(nodes, n)
		return n
	}

	rows := append([]domain.ConstituentSnapshot(nil), snap.Constituents...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].MarketCap > rows[j].MarketCap })

	for _, c := range rows {
		sector := branch(RootLabel+"/"+c.Sector, c.Sector, RootLabel, 1)
		parent := sector
		chain := []*node{root, sector}
		if opts.UseIndustry {
			ind := branch(sector.id+"/"+c.SubIndustry, c.SubIndustry, sector.id, 2)
			parent = ind
			chain = append(chain, ind)
		}

		change := 0.0
		if c.PercentChange != nil {
			change = *c.PercentChange / 100
		}
		leaf := &node{
			id:     parent.id + "/" + c.Symbol,
			label:  c.Symbol,
			parent: parent.id,
			level:  parent.level + 1,
			value:  c.ShareOfTotal,
			leaf:   true,
			hover:  leafHover(c),
		}
		leaf.change = change
		byID[leaf.id] = leaf
		nodes = append(nodes, leaf)

		for _, n := range chain {
			n.weightedChange += change * c.ShareOfTotal
			n.weight += c.ShareOfTotal
		}
	}

	root.hover = rootHover(snap.TotalMarketCap, opts.IndexChange)
	var fig Figure
	for _, n := range nodes {
		switch {
		case n.leaf:
		case n.level == 1:
			n.hover = fmt.Sprintf("<b>%s</b><br>Sector Share of S&P 500: %.2f%%", template.HTMLEscapeString(n.label), n.weight)
		case n.level == 2:
			n.hover = fmt.Sprintf("<b>%s</b><br>Industry Share of S&P 500: %.2f%%", template.HTMLEscapeString(n.label), n.weight)
		}

		var color string
		switch {
		case n.leaf:
			color = Color(n.change)
		case n.level == 1:
			color = SectorColor
		default:
			avg := 0.0
			if n.weight > 0 {
				avg = n.weightedChange / n.weight
			}
			color = Color(avg)
		}

		fig.IDs = append(fig.IDs, n.id)
		fig.Labels = append(fig.Labels, n.label)
		fig.Parents = append(fig.Parents, n.parent)
		fig.Values = append(fig.Values, n.value)
		fig.Colors = append(fig.Colors, color)
		fig.HoverTexts = append(fig.HoverTexts, n.hover)
		fig.Levels = append(fig.Levels, n.level)
	}
	return fig
}

func rootHover(total float64, change *float64) string {
	pct := "n/a"
	if change != nil {
		pct = fmt.Sprintf("%.2f%%", *change)
	}
	return fmt.Sprintf("<b>%s</b><br>Total Market Cap: %s<br>Overall Percent Change: %s",
		RootLabel, FormatTotalMarketCap(total), pct)
}

func leafHover(c domain.ConstituentSnapshot) string {
	pct := "n/a"
	if c.PercentChange != nil {
		pct = fmt.Sprintf("%.2f%%", *c.PercentChange)
	}
	return fmt.Sprintf("<b>%s</b><br>Company: %s<br>Industry: %s<br>Market Cap: %s<br>%% of S&P 500: %.2f%%<br>Percent Change: %s",
		c.Symbol, template.HTMLEscapeString(c.Security), template.HTMLEscapeString(c.SubIndustry),
		FormatMarketCap(c.MarketCap), c.ShareOfTotal, pct)
}

// Title is the page and chart title for date.
func Title(date string) string {
	return date + " : S&P 500 Treemap: Constituents by Market Cap and Percent Change"
}

var pageTmpl = template.Must(template.New("treemap").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="{{.PlotlyURL}}"></script>
<style>html,body{margin:0;height:100%}#treemap{width:100%;height:100%}</style>
</head>
<body>
<div id="treemap"></div>
<script>
var fig = {{.Figure}};
Plotly.newPlot("treemap", [{
  type: "treemap",
  ids: fig.ids,
  labels: fig.labels,
  parents: fig.parents,
  values: fig.values,
  branchvalues: "remainder",
  marker: {colors: fig.colors},
  hovertext: fig.hovertext,
  hovertemplate: "%{hovertext}<extra></extra>"
}], {
  title: {text: {{.Title}}},
  margin: {t: 50, l: 10, r: 10, b: 10}
}, {responsive: true});
</script>
</body>
</html>
`))

// Render writes the standalone HTML page for snap.
func Render(w io.Writer, snap domain.MarketSnapshot, opts Options) error {
	return pageTmpl.Execute(w, struct {
		Title     string
		PlotlyURL string
		Figure    Figure
	}{
		Title:     Title(snap.Date.Format(domain.DateFormat)),
		PlotlyURL: PlotlyCDN,
		Figure:    Build(snap, opts),
	})
}
