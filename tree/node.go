package tree

import (
	"fmt"

	"github.com/RunningKuma/matrix-on-vscode/site"
)

// Command identifiers carried by tree items.
const (
	CmdSignIn             = "matrix-on-vscode.signin"
	CmdRefreshCourses     = "matrix-on-vscode.refreshCourses"
	CmdRefreshAssignments = "matrix-on-vscode.refreshCourseAssignments"
	CmdPreviewProblem     = "matrix-on-vscode.previewProblem"
)

// Category of a course.
const (
	Ongoing  = "ongoing"
	Finished = "finished"
)

// Group of assignments within a course.
const (
	Pending   = "pending"
	Completed = "completed"
)

// Node is an element of the course tree. Its ID is stable across refreshes.
type Node interface {
	ID() string
}

// CategoryNode groups courses by whether they are ongoing.
type CategoryNode struct {
	Category string
}

func (n CategoryNode) ID() string { return "category:" + n.Category }

// CourseNode is a single course.
type CourseNode struct {
	Course site.Course
}

func (n CourseNode) ID() string { return courseNodeID(n.Course.ID) }

func courseNodeID(id int) string { return fmt.Sprintf("course:%d", id) }

// GroupNode lists either the pending or the completed assignments of a
// course.
type GroupNode struct {
	CourseID int
	Group    string
}

func (n GroupNode) ID() string { return fmt.Sprintf("group:%d:%s", n.CourseID, n.Group) }

// AssignmentNode is a single assignment.
type AssignmentNode struct {
	Assignment site.Assignment
}

func (n AssignmentNode) ID() string {
	return fmt.Sprintf("assignment:%d:%d", n.Assignment.CourseID, n.Assignment.ID)
}

// InfoNode is a leaf carrying a message and an optional action, used for
// empty lists, errors and the signed-out state.
type InfoNode struct {
	Label   string
	Icon    string
	Command *Command
}

func (n InfoNode) ID() string { return "info:" + n.Label }

func infoNode(label, icon string, cmd *Command) InfoNode {
	return InfoNode{Label: label, Icon: icon, Command: cmd}
}

var (
	noCourses     = infoNode("暂无课程", "", nil)
	noAssignments = infoNode("暂无题目", "", nil)
	loadingCourse = infoNode("正在加载课程…", "loading~spin", nil)
	loadingAsgn   = infoNode("正在加载题目…", "loading~spin", nil)
	signedOut     = infoNode("未登录 Matrix", "account", &Command{Command: CmdSignIn, Title: "登录 Matrix"})
)

func coursesFailed(msg string) InfoNode {
	label := "加载课程失败：" + msg
	return infoNode(label, "error", &Command{Command: CmdRefreshCourses, Title: label})
}

func assignmentsFailed(courseID int, msg string) InfoNode {
	label := "加载题目失败：" + msg
	return infoNode(label, "error", &Command{
		Command:   CmdRefreshAssignments,
		Title:     label,
		Arguments: []any{courseID},
	})
}
