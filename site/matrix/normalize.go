package matrix

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/RunningKuma/matrix-on-vscode/jsonv"
	"github.com/RunningKuma/matrix-on-vscode/site"
)

// Normalizer maps loosely shaped Matrix records into site types. The zero
// Normalizer uses the wall clock and the local time zone.
type Normalizer struct {
	// Now returns the current time for deadline comparisons.
	Now func() time.Time
	// Location is used for dates carrying a time of day but no offset.
	Location *time.Location
}

var (
	courseListAt = []jsonv.Accessor{
		func(v jsonv.Value) jsonv.Value { return v },
		jsonv.Key("data"),
		jsonv.Key("courses"),
		jsonv.Path("data", "courses"),
		jsonv.Key("user_course"),
		jsonv.Key("userCourses"),
	}
	assignmentListAt = []jsonv.Accessor{
		func(v jsonv.Value) jsonv.Value { return v },
		jsonv.Key("data"),
		jsonv.Key("assignments"),
	}

	courseTitle     = jsonv.Keys("name", "course_name", "title")
	courseCode      = jsonv.Keys("course_code", "code", "courseCode")
	courseTerm      = jsonv.Keys("term", "semester", "school_year")
	courseEndAt     = jsonv.Keys("end_at", "enddate", "close_time", "finish_at", "endTime")
	courseEmbedded  = jsonv.Keys("assignments", "course_assignments", "assignment_list", "problem_set", "courseAssignments")
	asgnStartAt     = jsonv.Keys("startdate", "start_at", "startTime")
	asgnDeadline    = jsonv.Keys("enddate", "due_at", "deadline", "endTime")
	asgnScore       = jsonv.Keys("grade", "score")
	asgnMaxScore    = jsonv.Keys("standard_score", "total_score", "max_grade", "maxScore")
	asgnSubmitTimes = jsonv.Keys("submit_times", "submitTimes", "submissions")

	finishedStatus = regexp.MustCompile(`finish|done|completed|closed|ended|graded|已完成|已截止|已关闭`)
)

func (n Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

func (n Normalizer) location() *time.Location {
	if n.Location != nil {
		return n.Location
	}
	return time.Local
}

// NormalizeCourses locates the course list in payload and normalizes every
// element. A payload without a recognizable list yields an empty slice.
func (n Normalizer) NormalizeCourses(payload jsonv.Value) []site.Course {
	list, _ := jsonv.FirstArray(payload, courseListAt...)
	courses := make([]site.Course, 0, len(list))
	for i, item := range list {
		courses = append(courses, n.course(item, i))
	}
	return courses
}

// NormalizeAssignments locates the assignment list in payload and normalizes
// every element for courseID.
func (n Normalizer) NormalizeAssignments(payload jsonv.Value, courseID int) []site.Assignment {
	list, _ := jsonv.FirstArray(payload, assignmentListAt...)
	assignments := make([]site.Assignment, 0, len(list))
	for i, entry := range list {
		assignments = append(assignments, n.assignment(entry, courseID, i))
	}
	return assignments
}

func (n Normalizer) course(item jsonv.Value, index int) site.Course {
	pos := float64(index + 1)
	id := toInt(jsonv.ToNumber(jsonv.FirstDefined(item,
		jsonv.Key("course_id"), jsonv.Key("id"), jsonv.Key("courseId"), jsonv.Const(jsonv.Of(pos)),
	), pos))

	c := site.Course{
		ID:    id,
		Title: jsonv.ToString(jsonv.FirstDefined(item, courseTitle...), fmt.Sprintf("课程 %d", id)),
		Code:  optString(item, courseCode),
		Term:  optString(item, courseTerm),
		State: optString(item, []jsonv.Accessor{jsonv.Key("status")}),
		EndAt: optString(item, courseEndAt),
		Raw:   item,
	}

	c.Assignments = []site.Assignment{}
	if list, ok := jsonv.FirstDefined(item, courseEmbedded...).Array(); ok {
		for i, entry := range list {
			c.Assignments = append(c.Assignments, n.assignment(entry, id, i))
		}
	}
	c.IsOngoing = n.isOngoing(c.State, c.EndAt, c.Assignments)
	return c
}

func (n Normalizer) assignment(entry jsonv.Value, courseID, index int) site.Assignment {
	pos := float64(index + 1)
	id := toInt(jsonv.ToNumber(jsonv.FirstDefined(entry,
		jsonv.Key("ca_id"), jsonv.Key("asgn_id"), jsonv.Const(jsonv.Of(pos)),
	), pos))

	finishedFlag := jsonv.Value{}
	if b, ok := entry.Get("finished").Bool(); ok && b {
		finishedFlag = jsonv.Of("finished")
	}

	a := site.Assignment{
		ID:       id,
		CourseID: courseID,
		Title:    jsonv.ToString(entry.Get("title"), fmt.Sprintf("题目 %d", id)),
		StartAt:  optString(entry, asgnStartAt),
		Deadline: optString(entry, asgnDeadline),
		Status: optString(entry, []jsonv.Accessor{
			jsonv.Key("status"), jsonv.Key("state"), jsonv.Const(finishedFlag),
		}),
		Score:       optNumber(entry, asgnScore),
		MaxScore:    optNumber(entry, asgnMaxScore),
		SubmitTimes: optNumber(entry, asgnSubmitTimes),
		Raw:         entry,
	}
	a.IsFinished = n.isFinished(entry, a.Status, a.Deadline)
	a.IsFullScore = isFullScore(a.Score, a.MaxScore, a.IsFinished)
	return a
}

// isFinished applies, in order: an explicit finished flag, a status that
// reads as finished, an explicit is_finished flag, and a passed deadline.
func (n Normalizer) isFinished(entry jsonv.Value, status, deadline string) bool {
	if b, ok := entry.Get("finished").Bool(); ok {
		return b
	}
	if status != "" && finishedStatus.MatchString(strings.ToLower(status)) {
		return true
	}
	if b, ok := entry.Get("is_finished").Bool(); ok {
		return b
	}
	if t, ok := n.ParseTime(deadline); ok && t.Before(n.now()) {
		return true
	}
	return false
}

func isFullScore(score, maxScore *float64, finished bool) bool {
	if score == nil || maxScore == nil || *maxScore == 0 {
		return false
	}
	if !finished {
		return false
	}
	return math.Abs(*score-*maxScore) < 1e-6
}

// isOngoing decides whether a course is still running. Without any state,
// end date or parseable deadline the course counts as ongoing.
func (n Normalizer) isOngoing(state, endAt string, assignments []site.Assignment) bool {
	switch strings.ToLower(state) {
	case "close":
		return false
	case "ongoing":
		return true
	}

	if t, ok := n.ParseTime(endAt); ok {
		return !t.Before(n.now())
	}

	var deadlines []time.Time
	for _, a := range assignments {
		if t, ok := n.ParseTime(a.Deadline); ok {
			deadlines = append(deadlines, t)
		}
	}
	if len(deadlines) > 0 {
		sort.Slice(deadlines, func(i, j int) bool { return deadlines[i].Before(deadlines[j]) })
		return !deadlines[0].Before(n.now())
	}
	return true
}

// zonedLayouts carry their own offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC1123Z,
	time.RFC1123,
}

// dateOnlyLayouts are ISO dates without a time, read as UTC.
var dateOnlyLayouts = []string{
	"2006",
	"2006-01",
	"2006-01-02",
}

// localLayouts have a time of day but no offset.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
}

// ParseTime parses the date formats the Matrix API is known to emit.
// Date-only ISO strings (year, year-month, full date) are read as UTC
// midnight, other offset-less forms in the Normalizer's location, and any
// other bare integer as epoch milliseconds.
func (n Normalizer) ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateOnlyLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, n.location()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func optString(src jsonv.Value, candidates []jsonv.Accessor) string {
	s, _ := jsonv.ToOptionalString(jsonv.FirstDefined(src, candidates...))
	return s
}

func optNumber(src jsonv.Value, candidates []jsonv.Accessor) *float64 {
	f, ok := jsonv.ToOptionalNumber(jsonv.FirstDefined(src, candidates...))
	if !ok {
		return nil
	}
	return &f
}

// toInt truncates f towards zero, saturating at the int range.
func toInt(f float64) int {
	switch {
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= math.MinInt:
		return math.MinInt
	}
	return int(f)
}
