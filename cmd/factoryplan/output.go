package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"factory-planner/db/clickhouse"
	"factory-planner/decision/catalog"
	"factory-planner/decision/planning"
	"factory-planner/decision/resolution"
	planerrors "factory-planner/pkg/errors"
	"factory-planner/pkg/units"
)

// BoxSet is the set of box-drawing characters a tree is drawn with.
type BoxSet struct {
	Last     [2]string // [last child, other child]
	Children [2]string // [has children, leaf]
	More     string
	Pad      string
}

var boxSets = map[string]BoxSet{
	"simple": {
		Last:     [2]string{"└", "├"},
		Children: [2]string{"┬", ">"},
		More:     "|",
		Pad:      "─",
	},
	"double": {
		Last:     [2]string{"╚", "╠"},
		Children: [2]string{"╦", ">"},
		More:     "║",
		Pad:      "═",
	},
}

// palette highlights parts of the text output.
type palette struct {
	branch  func(string) string
	count   func(string) string
	primary func(string) string
	warn    func(string) string
}

func plain(s string) string { return s }

func newPalette(w io.Writer, color bool) palette {
	if !color {
		return palette{branch: plain, count: plain, primary: plain, warn: plain}
	}
	r := lipgloss.NewRenderer(w)
	branch := r.NewStyle().Foreground(lipgloss.Color("1"))
	count := r.NewStyle().Bold(true)
	primary := r.NewStyle().Foreground(lipgloss.Color("6"))
	warn := r.NewStyle().Foreground(lipgloss.Color("214"))
	return palette{
		branch:  func(s string) string { return branch.Render(s) },
		count:   func(s string) string { return count.Render(s) },
		primary: func(s string) string { return primary.Render(s) },
		warn:    func(s string) string { return warn.Render(s) },
	}
}

// formatQuantity prints at most two fraction digits, groups thousands and
// pads to four columns so short counts line up.
func formatQuantity(q units.Quantity) string {
	const width = 4
	s := q.Round(2).String()

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	var grouped strings.Builder
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(ch)
	}
	s = sign + grouped.String() + frac

	if len(s) < width {
		s = strings.Repeat(" ", width-len(s)) + s
	}
	return s
}

func itemName(cat *catalog.Catalog, id catalog.ItemID) (string, bool) {
	if it, ok := cat.Item(id); ok {
		return it.Name, it.IsPrimary()
	}
	return string(id), false
}

// renderTree draws the forest one node per line:
//
//	╠═╦ (   2) Iron gear
//	║ ╚═> (   4) Iron plate
func renderTree(w io.Writer, cat *catalog.Catalog, roots []*resolution.TreeNode, set BoxSet, padding int, p palette) {
	if padding < 1 {
		padding = 1
	}
	gap := strings.Repeat(" ", padding-1)

	var draw func(prefix string, node *resolution.TreeNode, last bool)
	draw = func(prefix string, node *resolution.TreeNode, last bool) {
		l := set.Last[1]
		if last {
			l = set.Last[0]
		}
		c := set.Children[1]
		if !node.IsLeaf() {
			c = set.Children[0]
		}
		name, primary := itemName(cat, node.Item)
		if primary {
			name = p.primary(name)
		}
		fmt.Fprintf(w, "%s%s (%s) %s\n",
			prefix, p.branch(l+strings.Repeat(set.Pad, padding-1)+c), p.count(formatQuantity(node.Quantity)), name)

		more := set.More
		if last {
			more = " "
		}
		for i, child := range node.Children {
			draw(prefix+p.branch(more)+gap, child, i == len(node.Children)-1)
		}
	}
	for i, root := range roots {
		draw("", root, i == len(roots)-1)
	}
}

func renderNeed(w io.Writer, cat *catalog.Catalog, set resolution.RequirementSet, p palette) {
	fmt.Fprintln(w, "Need: ")
	for _, r := range set {
		name, _ := itemName(cat, r.Item)
		fmt.Fprintf(w, "%s %s\n", p.count(formatQuantity(r.Quantity)), name)
	}
}

func renderBuildings(w io.Writer, cat *catalog.Catalog, plan *planning.Plan, p palette) {
	for _, a := range plan.Buildings {
		building := string(a.Building)
		if b, ok := cat.Building(a.Building); ok {
			building = b.Name
		}
		recipe := string(a.Recipe)
		if r, ok := cat.Recipe(a.Recipe); ok {
			recipe = r.Name
		}
		fmt.Fprintf(w, "%s %s for %s\n", formatQuantity(a.Count), p.count(building), recipe)
	}
}

func renderBelts(w io.Writer, cat *catalog.Catalog, plan *planning.Plan) {
	if len(plan.Belts) == 0 {
		return
	}
	belt := string(plan.Belt)
	if b, ok := cat.Belt(plan.Belt); ok {
		belt = b.Name
	}
	fmt.Fprintf(w, "Belts (%s):\n", belt)
	for _, l := range plan.Belts {
		name, _ := itemName(cat, l.Item)
		fmt.Fprintf(w, "%s %s\n", formatQuantity(l.Belts), name)
	}
}

func renderWarnings(w io.Writer, warnings []*planerrors.PlannerError, p palette) {
	for _, warning := range warnings {
		fmt.Fprintf(w, "%s %s\n", p.warn("warning:"), warning.Message)
	}
}

// =============================================================================
// OUTPUT FORMATTERS
// =============================================================================

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputPlanTable(w io.Writer, cat *catalog.Catalog, plan *planning.Plan, p palette) {
	renderBuildings(w, cat, plan, p)
	fmt.Fprintln(w)
	renderNeed(w, cat, plan.Inputs, p)
	if len(plan.Belts) > 0 {
		fmt.Fprintln(w)
		renderBelts(w, cat, plan)
	}
	if len(plan.Warnings) > 0 {
		fmt.Fprintln(w)
		renderWarnings(w, plan.Warnings, p)
	}
}

func outputPlanMarkdown(w io.Writer, cat *catalog.Catalog, plan *planning.Plan) {
	fmt.Fprintf(w, "## Production plan (per %s)\n", plan.Per)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Recipe | Building | Count |")
	fmt.Fprintln(w, "|--------|----------|-------|")
	for _, a := range plan.Buildings {
		building := string(a.Building)
		if b, ok := cat.Building(a.Building); ok {
			building = b.Name
		}
		recipe := string(a.Recipe)
		if r, ok := cat.Recipe(a.Recipe); ok {
			recipe = r.Name
		}
		fmt.Fprintf(w, "| %s | %s | %s |\n", recipe, building, strings.TrimSpace(formatQuantity(a.Count)))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "### Raw resources")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Item | Quantity |")
	fmt.Fprintln(w, "|------|----------|")
	for _, r := range plan.Inputs {
		name, _ := itemName(cat, r.Item)
		fmt.Fprintf(w, "| %s | %s |\n", name, strings.TrimSpace(formatQuantity(r.Quantity)))
	}

	if len(plan.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "### Warnings")
		fmt.Fprintln(w)
		for _, warning := range plan.Warnings {
			fmt.Fprintf(w, "- **%s**: %s\n", warning.Code, warning.Message)
		}
	}
}

func outputResolution(w io.Writer, cat *catalog.Catalog, iterations []resolution.RequirementSet, p palette) {
	for i, set := range iterations {
		fmt.Fprintf(w, "Step %d:\n", i)
		for _, r := range set {
			name, primary := itemName(cat, r.Item)
			if primary {
				name = p.primary(name)
			}
			fmt.Fprintf(w, "  %s %s\n", p.count(formatQuantity(r.Quantity)), name)
		}
	}
}

func outputRuns(w io.Writer, runs []*clickhouse.PlanRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No recorded runs")
		return
	}
	for _, run := range runs {
		status := "ok"
		if !run.Converged {
			status = "capped"
		}
		fmt.Fprintf(w, "%s  %s  %-8s %-6s %s per %s\n",
			run.ID, run.CreatedAt.Format("2006-01-02 15:04:05"), run.Catalog, status, run.Targets, run.Per)
	}
}

func outputCatalog(w io.Writer, cat *catalog.Catalog, kind string) error {
	switch kind {
	case "items":
		for _, it := range cat.Items() {
			place := "raw"
			if !it.IsPrimary() {
				place = string(it.CraftPlace)
			}
			fmt.Fprintf(w, "%-28s %-28s %s\n", it.ID, it.Name, place)
		}
	case "recipes":
		for _, r := range cat.Recipes() {
			fmt.Fprintf(w, "%-28s %s -> %s (%s, %s)\n", r.ID, stacks(r.Inputs), stacks(r.Outputs), r.Duration, r.BuildingType)
		}
	case "buildings":
		for _, b := range cat.Buildings() {
			slots := "-"
			if b.MaxItems > 0 {
				slots = fmt.Sprint(b.MaxItems)
			}
			fmt.Fprintf(w, "%-24s %-20s speed %-5s size %dx%d modules %s\n",
				b.ID, b.Type, b.Speed, b.Size[0], b.Size[1], slots)
		}
	case "belts":
		for _, b := range cat.Belts() {
			fmt.Fprintf(w, "%-20s %-26s %s underground %d\n", b.ID, b.Name, b.Throughput, b.UndergroundLength)
		}
	default:
		return fmt.Errorf("unknown catalog kind %q (items, recipes, buildings, belts)", kind)
	}
	return nil
}

func stacks(list []catalog.Stack) string {
	if len(list) == 0 {
		return "nothing"
	}
	parts := make([]string, len(list))
	for i, s := range list {
		parts[i] = s.Count.String() + " " + string(s.Item)
	}
	return strings.Join(parts, " + ")
}
