package tree

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RunningKuma/matrix-on-vscode/site"
)

type fakeFetcher struct {
	mu          sync.Mutex
	courses     []site.Course
	coursesErr  error
	assignments map[int][]site.Assignment
	asgnErr     map[int]error

	courseCalls atomic.Int32
	asgnCalls   atomic.Int32
	gate        chan struct{}
	onFetch     func(courseID int)
}

func (f *fakeFetcher) FetchCourses(context.Context) ([]site.Course, error) {
	f.courseCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]site.Course(nil), f.courses...), f.coursesErr
}

func (f *fakeFetcher) FetchAssignments(_ context.Context, courseID int) ([]site.Assignment, error) {
	f.asgnCalls.Add(1)
	if f.onFetch != nil {
		f.onFetch(courseID)
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assignments[courseID], f.asgnErr[courseID]
}

func sampleFetcher() *fakeFetcher {
	return &fakeFetcher{
		courses: []site.Course{
			{ID: 5, Title: "CS101", IsOngoing: true},
			{ID: 6, Title: "History", IsOngoing: false},
		},
		assignments: map[int][]site.Assignment{
			5: {
				{ID: 10, CourseID: 5, Title: "HW1", IsFinished: true},
				{ID: 11, CourseID: 5, Title: "HW2"},
				{ID: 12, CourseID: 5, Title: "HW3"},
			},
		},
		asgnErr: map[int]error{},
	}
}

func labels(c *Controller, nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = c.TreeItem(n).Label
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTreeWalk(t *testing.T) {
	f := sampleFetcher()
	c := NewController(f)
	ctx := context.Background()

	root := c.Children(ctx, nil)
	if got := labels(c, root); !equal(got, []string{"进行中的课程", "已结束的课程"}) {
		t.Fatalf("root = %v", got)
	}

	ongoing := c.Children(ctx, root[0])
	if got := labels(c, ongoing); !equal(got, []string{"CS101"}) {
		t.Errorf("ongoing = %v", got)
	}
	if got := labels(c, c.Children(ctx, root[1])); !equal(got, []string{"History"}) {
		t.Errorf("finished = %v", got)
	}

	groups := c.Children(ctx, ongoing[0])
	if got := labels(c, groups); !equal(got, []string{"未完成题目", "已完成题目"}) {
		t.Fatalf("groups = %v", got)
	}
	if got := labels(c, c.Children(ctx, groups[0])); !equal(got, []string{"HW2", "HW3"}) {
		t.Errorf("pending = %v", got)
	}
	if got := labels(c, c.Children(ctx, groups[1])); !equal(got, []string{"HW1"}) {
		t.Errorf("completed = %v", got)
	}

	if n := f.asgnCalls.Load(); n != 1 {
		t.Errorf("assignment fetches = %d, want 1", n)
	}
	if n := f.courseCalls.Load(); n != 1 {
		t.Errorf("course fetches = %d, want 1", n)
	}

	// The course list picks up the fetched assignments.
	if courses := c.Courses(); len(courses[0].Assignments) != 3 {
		t.Errorf("course assignments not synchronized: %+v", courses[0])
	}
}

func TestEntryStates(t *testing.T) {
	f := sampleFetcher()
	f.gate = make(chan struct{})
	c := NewController(f)

	if _, ok := c.Entry(5); ok {
		t.Fatal("entry exists before access")
	}

	started := make(chan struct{})
	f.onFetch = func(int) { close(started) }
	done := make(chan []Node)
	go func() { done <- c.Children(context.Background(), GroupNode{CourseID: 5, Group: Pending}) }()

	<-started
	if e, ok := c.Entry(5); !ok || !e.Loading || e.Loaded {
		t.Errorf("entry while fetching = %+v, %v", e, ok)
	}
	close(f.gate)
	<-done

	e, _ := c.Entry(5)
	if e.Loading || !e.Loaded || e.Err != "" || len(e.Pending) != 2 || len(e.Completed) != 1 {
		t.Errorf("entry after fetch = %+v", e)
	}
}

func TestRefreshAssignmentsRefetchesOnce(t *testing.T) {
	f := sampleFetcher()
	c := NewController(f)
	ctx := context.Background()
	group := GroupNode{CourseID: 5, Group: Pending}

	c.Children(ctx, nil)
	c.Children(ctx, group)
	c.Children(ctx, group)
	if n := f.asgnCalls.Load(); n != 1 {
		t.Fatalf("fetches before refresh = %d", n)
	}

	id := 5
	c.RefreshAssignments(&id)
	if _, ok := c.Entry(5); ok {
		t.Error("entry survived eviction")
	}

	var mu sync.Mutex
	var states []bool
	f.onFetch = func(int) {
		e, _ := c.Entry(5)
		mu.Lock()
		states = append(states, e.Loading)
		mu.Unlock()
	}
	c.Children(ctx, group)
	c.Children(ctx, GroupNode{CourseID: 5, Group: Completed})

	if n := f.asgnCalls.Load(); n != 2 {
		t.Errorf("fetches after refresh = %d, want 2", n)
	}
	if len(states) != 1 || !states[0] {
		t.Errorf("entry was not loading during refetch: %v", states)
	}
}

func TestConcurrentChildrenShareFetch(t *testing.T) {
	f := sampleFetcher()
	f.gate = make(chan struct{})
	c := NewController(f)
	group := GroupNode{CourseID: 5, Group: Pending}

	var wg sync.WaitGroup
	results := make([][]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = labels(c, c.Children(context.Background(), group))
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	if n := f.asgnCalls.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
	for i, got := range results {
		if !equal(got, []string{"HW2", "HW3"}) {
			t.Errorf("caller %d got %v", i, got)
		}
	}
}

func TestCancelledCallerSeesLoading(t *testing.T) {
	f := sampleFetcher()
	f.gate = make(chan struct{})
	c := NewController(f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	got := labels(c, c.Children(ctx, GroupNode{CourseID: 5, Group: Pending}))
	if !equal(got, []string{"正在加载题目…"}) {
		t.Errorf("cancelled caller got %v", got)
	}

	events, stop := c.Subscribe()
	defer stop()
	close(f.gate)

	select {
	case ev := <-events:
		if ev.NodeID != "course:5" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("fetch result was not committed")
	}
	if e, _ := c.Entry(5); !e.Loaded {
		t.Errorf("entry = %+v", e)
	}
}

func TestNotificationsAfterCommit(t *testing.T) {
	f := sampleFetcher()
	c := NewController(f)
	events, stop := c.Subscribe()
	defer stop()

	c.Children(context.Background(), GroupNode{CourseID: 5, Group: Pending})

	first := <-events
	if first.NodeID != "course:5" {
		t.Errorf("first event = %+v", first)
	}
	second := <-events
	if second.NodeID != "course:5" {
		t.Errorf("second event = %+v", second)
	}
	if e, ok := c.Entry(5); !ok || !e.Loaded {
		t.Errorf("entry at notification = %+v", e)
	}
}

func TestSubscriberSeesCommittedEntry(t *testing.T) {
	f := sampleFetcher()
	c := NewController(f)
	events, stop := c.Subscribe()
	defer stop()

	seen := make(chan Entry, 2)
	go func() {
		for range events {
			e, _ := c.Entry(5)
			seen <- e
		}
	}()

	c.Children(context.Background(), GroupNode{CourseID: 5, Group: Pending})

	loading := <-seen
	loaded := <-seen
	if !loading.Loading && !loading.Loaded {
		t.Errorf("first notification saw %+v", loading)
	}
	if !loaded.Loaded || len(loaded.Pending) != 2 {
		t.Errorf("second notification saw %+v", loaded)
	}
}

func TestAssignmentError(t *testing.T) {
	f := sampleFetcher()
	f.asgnErr[5] = site.NewHTTPError(500, "server error")
	c := NewController(f)

	nodes := c.Children(context.Background(), GroupNode{CourseID: 5, Group: Completed})
	if len(nodes) != 1 {
		t.Fatalf("nodes = %v", nodes)
	}
	it := c.TreeItem(nodes[0])
	if it.Label != "加载题目失败：server error" || it.Command == nil || it.Command.Command != CmdRefreshAssignments {
		t.Errorf("item = %+v", it)
	}
	if it.Command.Arguments[0] != 5 {
		t.Errorf("retry arguments = %v", it.Command.Arguments)
	}

	e, _ := c.Entry(5)
	if !e.Loaded || e.Loading || e.Err != "server error" || e.Pending == nil || len(e.Pending) != 0 {
		t.Errorf("entry = %+v", e)
	}

	// Errors stay cached until evicted.
	c.Children(context.Background(), GroupNode{CourseID: 5, Group: Pending})
	if n := f.asgnCalls.Load(); n != 1 {
		t.Errorf("fetches = %d", n)
	}
}

func TestEmptyGroups(t *testing.T) {
	f := sampleFetcher()
	c := NewController(f)
	got := labels(c, c.Children(context.Background(), GroupNode{CourseID: 6, Group: Pending}))
	if !equal(got, []string{"暂无题目"}) {
		t.Errorf("empty group = %v", got)
	}
}

func TestRootStates(t *testing.T) {
	ctx := context.Background()

	f := sampleFetcher()
	f.coursesErr = errors.New("boom")
	c := NewController(f)
	nodes := c.Children(ctx, nil)
	it := c.TreeItem(nodes[0])
	if it.Label != "加载课程失败：boom" || it.Command.Command != CmdRefreshCourses {
		t.Errorf("error root = %+v", it)
	}
	c.Children(ctx, nil)
	if n := f.courseCalls.Load(); n != 1 {
		t.Errorf("errored root refetched: %d calls", n)
	}

	f.mu.Lock()
	f.coursesErr = nil
	f.courses = nil
	f.mu.Unlock()
	c.Refresh(Options{Force: true})
	if got := labels(c, c.Children(ctx, nil)); !equal(got, []string{"暂无课程"}) {
		t.Errorf("empty root = %v", got)
	}

	signed := &fakeFetcher{coursesErr: site.NotSignedIn{Message: "当前未登录 Matrix"}}
	c = NewController(signed)
	nodes = c.Children(ctx, nil)
	it = c.TreeItem(nodes[0])
	if it.Label != "未登录 Matrix" || it.Command.Command != CmdSignIn {
		t.Errorf("signed out root = %+v", it)
	}
	signed.mu.Lock()
	signed.coursesErr = nil
	signed.courses = []site.Course{{ID: 1, Title: "A", IsOngoing: true}}
	signed.mu.Unlock()
	if got := labels(c, c.Children(ctx, nil)); len(got) != 2 {
		t.Errorf("root after sign-in = %v", got)
	}
}

func TestCategoryEmpty(t *testing.T) {
	f := sampleFetcher()
	f.courses = f.courses[:1]
	c := NewController(f)
	c.Children(context.Background(), nil)
	if got := labels(c, c.Children(context.Background(), CategoryNode{Category: Finished})); !equal(got, []string{"暂无课程"}) {
		t.Errorf("finished = %v", got)
	}
}

func TestForcedRefresh(t *testing.T) {
	f := sampleFetcher()
	c := NewController(f)
	ctx := context.Background()
	c.Children(ctx, nil)
	c.Children(ctx, GroupNode{CourseID: 5, Group: Pending})

	events, stop := c.Subscribe()
	defer stop()

	c.Refresh(Options{})
	if ev := <-events; ev.NodeID != "" {
		t.Errorf("soft refresh event = %+v", ev)
	}
	if _, ok := c.Entry(5); !ok {
		t.Error("soft refresh dropped the cache")
	}

	c.Refresh(Options{Force: true})
	if ev := <-events; ev.NodeID != "" {
		t.Errorf("forced refresh event = %+v", ev)
	}
	if _, ok := c.Entry(5); ok {
		t.Error("forced refresh kept the assignment cache")
	}
	if len(c.Courses()) != 0 {
		t.Error("forced refresh kept the course list")
	}

	c.Children(ctx, nil)
	if n := f.courseCalls.Load(); n != 2 {
		t.Errorf("course fetches = %d, want 2", n)
	}
}

func TestRefreshDiscardsStaleFetch(t *testing.T) {
	f := sampleFetcher()
	f.gate = make(chan struct{})
	c := NewController(f)

	started := make(chan struct{})
	f.onFetch = func(int) { close(started) }
	done := make(chan struct{})
	go func() {
		c.Children(context.Background(), GroupNode{CourseID: 5, Group: Pending})
		close(done)
	}()

	<-started
	id := 5
	c.RefreshAssignments(&id)
	close(f.gate)
	<-done

	if _, ok := c.Entry(5); ok {
		t.Error("stale fetch was committed after eviction")
	}
}

func TestRefreshAllAssignments(t *testing.T) {
	f := sampleFetcher()
	c := NewController(f)
	c.Children(context.Background(), GroupNode{CourseID: 5, Group: Pending})
	c.Children(context.Background(), GroupNode{CourseID: 6, Group: Pending})

	events, stop := c.Subscribe()
	defer stop()
	c.RefreshAssignments(nil)

	if ev := <-events; ev.NodeID != "" {
		t.Errorf("event = %+v", ev)
	}
	_, ok5 := c.Entry(5)
	_, ok6 := c.Entry(6)
	if ok5 || ok6 {
		t.Error("entries survived full eviction")
	}
}

func TestSubscriberOverflow(t *testing.T) {
	c := NewController(sampleFetcher())
	events, stop := c.Subscribe()
	for i := 0; i < eventBuffer*2; i++ {
		c.Refresh(Options{})
	}
	if len(events) != eventBuffer {
		t.Errorf("buffered events = %d", len(events))
	}
	stop()
	stop()
	for range events {
	}
}

func TestLookup(t *testing.T) {
	f := sampleFetcher()
	c := NewController(f)
	ctx := context.Background()
	c.Children(ctx, nil)
	c.Children(ctx, GroupNode{CourseID: 5, Group: Pending})

	for _, id := range []string{"category:ongoing", "category:finished", "course:5", "group:5:pending", "group:5:completed", "assignment:5:11"} {
		n, ok := c.Lookup(id)
		if !ok || n.ID() != id {
			t.Errorf("Lookup(%q) = %v, %v", id, n, ok)
		}
	}
	for _, id := range []string{"", "category:other", "course:99", "course:x", "group:5:other", "assignment:5:99", "info:暂无课程"} {
		if n, ok := c.Lookup(id); ok {
			t.Errorf("Lookup(%q) = %v", id, n)
		}
	}
}
