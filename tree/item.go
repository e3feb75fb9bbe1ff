package tree

import (
	"fmt"
	"strings"

	"github.com/RunningKuma/matrix-on-vscode/errors"
	"github.com/RunningKuma/matrix-on-vscode/jsonv"
	"github.com/RunningKuma/matrix-on-vscode/site"
)

// Collapsible is the expansion state of a tree item.
type Collapsible int

const (
	None Collapsible = iota
	Collapsed
	Expanded
)

func (c Collapsible) String() string {
	switch c {
	case Collapsed:
		return "collapsed"
	case Expanded:
		return "expanded"
	default:
		return "none"
	}
}

func (c Collapsible) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Collapsible) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none":
		*c = None
	case "collapsed":
		*c = Collapsed
	case "expanded":
		*c = Expanded
	default:
		return errors.NewError("tree", "unknown collapsible state "+string(b), nil)
	}
	return nil
}

// Icon names a theme icon and optionally a theme colour.
type Icon struct {
	ID    string `json:"id"`
	Color string `json:"color,omitempty"`
}

// Command is the action attached to an item.
type Command struct {
	Command   string `json:"command"`
	Title     string `json:"title"`
	Arguments []any  `json:"arguments,omitempty"`
}

// Item is the presentation of a Node.
type Item struct {
	ID           string      `json:"id"`
	Label        string      `json:"label"`
	Description  string      `json:"description,omitempty"`
	Tooltip      string      `json:"tooltip,omitempty"`
	Collapsible  Collapsible `json:"collapsibleState"`
	ContextValue string      `json:"contextValue"`
	Icon         Icon        `json:"icon"`
	Command      *Command    `json:"command,omitempty"`
}

// TreeItem renders node for display.
func (c *Controller) TreeItem(node Node) Item {
	switch n := node.(type) {
	case CategoryNode:
		it := Item{
			ID:           n.ID(),
			Label:        "进行中的课程",
			Collapsible:  Expanded,
			ContextValue: "matrix.category." + n.Category,
			Icon:         Icon{ID: "rocket"},
		}
		if n.Category == Finished {
			it.Label = "已结束的课程"
			it.Icon.ID = "archive"
		}
		return it

	case CourseNode:
		return Item{
			ID:           n.ID(),
			Label:        n.Course.Title,
			Description:  courseDescription(n.Course),
			Tooltip:      courseTooltip(n.Course),
			Collapsible:  Collapsed,
			ContextValue: "matrix.course",
			Icon:         Icon{ID: "book"},
		}

	case GroupNode:
		it := Item{
			ID:           n.ID(),
			Label:        "未完成题目",
			Collapsible:  Expanded,
			ContextValue: "matrix.assignmentGroup." + n.Group,
			Icon:         Icon{ID: "watch"},
		}
		if n.Group == Completed {
			it.Label = "已完成题目"
			it.Icon.ID = "checklist"
		}
		return it

	case AssignmentNode:
		a := n.Assignment
		return Item{
			ID:           n.ID(),
			Label:        a.Title,
			Description:  c.assignmentDescription(a),
			Tooltip:      assignmentTooltip(a),
			Collapsible:  None,
			ContextValue: "matrix.assignment",
			Icon:         assignmentIcon(a),
			Command: &Command{
				Command:   CmdPreviewProblem,
				Title:     "查看题目预览",
				Arguments: []any{a},
			},
		}

	case InfoNode:
		icon := n.Icon
		if icon == "" {
			icon = "info"
		}
		return Item{
			ID:           n.ID(),
			Label:        n.Label,
			Collapsible:  None,
			ContextValue: "matrix.info",
			Icon:         Icon{ID: icon},
			Command:      n.Command,
		}
	}
	return Item{Label: fmt.Sprint(node)}
}

func courseDescription(c site.Course) string {
	var parts []string
	if c.Term != "" {
		parts = append(parts, c.Term)
	} else if c.Code != "" {
		parts = append(parts, c.Code)
	}
	if c.IsOngoing {
		parts = append(parts, "进行中")
	} else {
		parts = append(parts, "已结束")
	}
	return strings.Join(parts, " • ")
}

func courseTooltip(c site.Course) string {
	lines := []string{"课程：" + c.Title}
	if c.Code != "" {
		lines = append(lines, "课程编号："+c.Code)
	}
	if c.Term != "" {
		lines = append(lines, "学期："+c.Term)
	}
	lines = append(lines, fmt.Sprintf("题目数量：%d", len(c.Assignments)))
	if c.State != "" {
		lines = append(lines, "状态："+c.State)
	}
	if c.EndAt != "" {
		lines = append(lines, "结束时间："+c.EndAt)
	}
	return strings.Join(lines, "\n")
}

func assignmentIcon(a site.Assignment) Icon {
	switch {
	case a.IsFinished && a.IsFullScore:
		return Icon{ID: "check", Color: "testing.iconPassed"}
	case a.IsFinished:
		return Icon{ID: "error", Color: "testing.iconFailed"}
	default:
		return Icon{ID: "clock", Color: "badge.background"}
	}
}

func score(a site.Assignment) (string, bool) {
	if a.Score == nil || a.MaxScore == nil {
		return "", false
	}
	return jsonv.FormatNumber(*a.Score) + "/" + jsonv.FormatNumber(*a.MaxScore), true
}

func (c *Controller) assignmentDescription(a site.Assignment) string {
	var parts []string
	if s, ok := score(a); ok {
		mark := "$(x)"
		if a.IsFullScore {
			mark = "分数"
		}
		parts = append(parts, mark+" "+s)
	}
	if a.Deadline != "" {
		parts = append(parts, c.formatDate(a.Deadline))
	}
	if a.Status != "" {
		parts = append(parts, a.Status)
	} else if !a.IsFinished {
		parts = append(parts, "进行中")
	}
	return strings.Join(parts, " • ")
}

// formatDate renders a parseable date as a short local date and returns
// anything else unchanged.
func (c *Controller) formatDate(s string) string {
	t, ok := c.norm.ParseTime(s)
	if !ok {
		return s
	}
	return t.In(c.norm.Location).Format("2006/1/2")
}

func assignmentTooltip(a site.Assignment) string {
	lines := []string{"题目：" + a.Title}
	if a.StartAt != "" {
		lines = append(lines, "开始时间："+a.StartAt)
	}
	if a.Deadline != "" {
		lines = append(lines, "截止时间："+a.Deadline)
	}
	if a.Status != "" {
		lines = append(lines, "状态："+a.Status)
	}
	if s, ok := score(a); ok {
		lines = append(lines, "得分："+s)
	}
	if a.SubmitTimes != nil {
		lines = append(lines, "提交次数："+jsonv.FormatNumber(*a.SubmitTimes))
	}
	finished := "否"
	if a.IsFinished {
		finished = "是"
	}
	lines = append(lines, "是否完成："+finished)
	return strings.Join(lines, "\n")
}
