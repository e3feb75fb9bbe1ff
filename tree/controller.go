// Package tree caches courses and their assignments and exposes them as a
// lazily loaded hierarchy of nodes.
//
// Assignment lists are fetched per course on first access and stay cached
// until the course (or the whole cache) is invalidated. Every change to the
// cache is announced to subscribers after it has been committed.
package tree

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/kvo/std"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/RunningKuma/matrix-on-vscode/errors"
	"github.com/RunningKuma/matrix-on-vscode/site"
	"github.com/RunningKuma/matrix-on-vscode/site/matrix"
)

// Fetcher retrieves course data from the platform.
type Fetcher interface {
	FetchCourses(ctx context.Context) ([]site.Course, error)
	FetchAssignments(ctx context.Context, courseID int) ([]site.Assignment, error)
}

// Entry is the cached assignment state of one course.
type Entry struct {
	Pending   []site.Assignment `json:"pending"`
	Completed []site.Assignment `json:"completed"`
	Loading   bool              `json:"loading"`
	Loaded    bool              `json:"loaded"`
	Err       string            `json:"error,omitempty"`

	seq uint64
}

// Event announces that the children of a node changed. An empty NodeID
// refers to the root.
type Event struct {
	NodeID string `json:"node"`
}

// Options controls Refresh.
type Options struct {
	// Force discards the course list and every cached assignment list.
	Force bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l.With().Str("component", "tree").Logger() }
}

// WithLocation sets the zone used to display dates.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) { c.norm.Location = loc }
}

const eventBuffer = 32

// Controller owns the course list and the assignment cache.
type Controller struct {
	fetch   Fetcher
	log     zerolog.Logger
	norm    matrix.Normalizer
	flights singleflight.Group

	mu          sync.Mutex
	courses     []site.Course
	needsReload bool
	loading     bool
	signedOut   bool
	errMsg      string
	gen         uint64
	seq         uint64
	entries     map[int]*Entry

	subMu sync.Mutex
	subs  map[uuid.UUID]chan Event
}

// NewController returns a Controller that loads data through fetch.
func NewController(fetch Fetcher, opts ...Option) *Controller {
	c := &Controller{
		fetch:       fetch,
		log:         zerolog.Nop(),
		norm:        matrix.Normalizer{Location: time.Local},
		needsReload: true,
		entries:     make(map[int]*Entry),
		subs:        make(map[uuid.UUID]chan Event),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.norm.Location == nil {
		c.norm.Location = time.Local
	}
	return c
}

// Subscribe registers for change events. The returned function cancels the
// subscription and closes the channel. Events are dropped for a subscriber
// whose buffer is full.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	id := uuid.New()
	ch := make(chan Event, eventBuffer)

	c.subMu.Lock()
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

func (c *Controller) notify(nodeID string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subs {
		select {
		case ch <- Event{NodeID: nodeID}:
		default:
			c.log.Warn().Str("subscriber", id.String()).Str("node", nodeID).Msg("subscriber is full, dropping event")
		}
	}
}

// Children lists the children of node; a nil node is the root. It never
// fails: errors are reported as info nodes.
func (c *Controller) Children(ctx context.Context, node Node) []Node {
	switch n := node.(type) {
	case nil:
		return c.rootChildren(ctx)
	case CategoryNode:
		return c.categoryChildren(n.Category)
	case CourseNode:
		return []Node{
			GroupNode{CourseID: n.Course.ID, Group: Pending},
			GroupNode{CourseID: n.Course.ID, Group: Completed},
		}
	case GroupNode:
		return c.groupChildren(ctx, n)
	}
	return nil
}

func (c *Controller) rootChildren(ctx context.Context) []Node {
	c.mu.Lock()
	reload := c.needsReload
	c.mu.Unlock()
	if reload {
		c.loadCourses(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.signedOut:
		return []Node{signedOut}
	case c.errMsg != "":
		return []Node{coursesFailed(c.errMsg)}
	case c.loading || c.needsReload:
		return []Node{loadingCourse}
	case len(c.courses) == 0:
		return []Node{noCourses}
	}
	return []Node{CategoryNode{Category: Ongoing}, CategoryNode{Category: Finished}}
}

// loadCourses fetches the course list once per generation. Callers whose
// context ends early return before the fetch completes; the result is still
// committed.
func (c *Controller) loadCourses(ctx context.Context) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	fctx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(fmt.Sprintf("courses/%d", gen), func() (any, error) {
		c.mu.Lock()
		if c.gen != gen || !c.needsReload {
			c.mu.Unlock()
			return nil, nil
		}
		c.loading = true
		c.mu.Unlock()

		courses, err := c.fetch.FetchCourses(fctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			c.log.Debug().Msg("discarding course list fetched before refresh")
			return nil, nil
		}
		c.loading = false
		c.courses = nil
		c.signedOut = false
		c.errMsg = ""
		switch {
		case errors.Is(err, site.ErrNotSignedIn):
			c.signedOut = true
		case err != nil:
			c.log.Error().Err(err).Msg("cannot load courses")
			c.errMsg = err.Error()
			c.needsReload = false
		default:
			c.courses = courses
			c.needsReload = false
			c.log.Info().Int("count", len(courses)).Msg("loaded courses")
		}
		return nil, nil
	})

	select {
	case <-ch:
	case <-ctx.Done():
	}
}

func (c *Controller) categoryChildren(category string) []Node {
	c.mu.Lock()
	ongoing, finished := site.SplitCourses(c.courses)
	c.mu.Unlock()

	list := ongoing
	if category == Finished {
		list = finished
	}
	if len(list) == 0 {
		return []Node{noCourses}
	}
	nodes := make([]Node, len(list))
	for i, course := range list {
		nodes[i] = CourseNode{Course: course}
	}
	return nodes
}

func (c *Controller) groupChildren(ctx context.Context, n GroupNode) []Node {
	e := c.ensureAssignments(ctx, n.CourseID)
	switch {
	case e.Loading:
		return []Node{loadingAsgn}
	case e.Err != "":
		return []Node{assignmentsFailed(n.CourseID, e.Err)}
	}

	list := e.Pending
	if n.Group == Completed {
		list = e.Completed
	}
	if len(list) == 0 {
		return []Node{noAssignments}
	}
	nodes := make([]Node, len(list))
	for i, a := range list {
		nodes[i] = AssignmentNode{Assignment: a}
	}
	return nodes
}

// ensureAssignments returns a snapshot of the cache entry for courseID,
// loading it first if needed. Concurrent callers for the same entry share
// a single fetch.
func (c *Controller) ensureAssignments(ctx context.Context, courseID int) Entry {
	c.mu.Lock()
	e, ok := c.entries[courseID]
	if ok && e.Loaded {
		snap := *e
		c.mu.Unlock()
		return snap
	}
	if !ok {
		c.seq++
		e = &Entry{Loading: true, seq: c.seq}
		c.entries[courseID] = e
	}
	c.mu.Unlock()

	if !ok {
		c.notify(courseNodeID(courseID))
	}

	fctx := context.WithoutCancel(ctx)
	key := fmt.Sprintf("assignments/%d/%d", courseID, e.seq)
	ch := c.flights.DoChan(key, func() (any, error) {
		c.mu.Lock()
		done := e.Loaded
		c.mu.Unlock()
		if done {
			return nil, nil
		}

		list, err := c.fetch.FetchAssignments(fctx, courseID)

		c.mu.Lock()
		if c.entries[courseID] != e {
			c.mu.Unlock()
			c.log.Debug().Int("course", courseID).Msg("discarding assignments fetched before eviction")
			return nil, nil
		}
		if err != nil {
			c.log.Error().Err(err).Int("course", courseID).Msg("cannot load assignments")
			e.Pending, e.Completed = []site.Assignment{}, []site.Assignment{}
			e.Err = err.Error()
		} else {
			e.Pending, e.Completed = site.Partition(list)
			e.Err = ""
			for i := range c.courses {
				if c.courses[i].ID == courseID {
					c.courses[i].Assignments = list
				}
			}
		}
		e.Loading = false
		e.Loaded = true
		c.mu.Unlock()

		c.notify(courseNodeID(courseID))
		return nil, nil
	})

	select {
	case <-ch:
	case <-ctx.Done():
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return *e
}

// Refresh asks observers to reload the tree. With Force the course list and
// the whole assignment cache are discarded first.
func (c *Controller) Refresh(opts Options) {
	if opts.Force {
		c.mu.Lock()
		c.gen++
		c.courses = nil
		c.errMsg = ""
		c.signedOut = false
		c.loading = false
		c.needsReload = true
		c.entries = make(map[int]*Entry)
		c.mu.Unlock()
		c.log.Info().Msg("course tree invalidated")
	}
	c.notify("")
}

// RefreshAssignments evicts the cached assignments of one course, or of
// every course when courseID is nil.
func (c *Controller) RefreshAssignments(courseID *int) {
	c.mu.Lock()
	if courseID == nil {
		c.entries = make(map[int]*Entry)
	} else {
		delete(c.entries, *courseID)
	}
	c.mu.Unlock()

	if courseID == nil {
		c.notify("")
		return
	}
	c.notify(courseNodeID(*courseID))
}

// Entry returns a snapshot of the cache entry for courseID.
func (c *Controller) Entry(courseID int) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[courseID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Courses returns a copy of the cached course list.
func (c *Controller) Courses() []site.Course {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]site.Course(nil), c.courses...)
}

// Lookup resolves a node ID produced by Node.ID against the cached state.
// Info nodes are not addressable.
func (c *Controller) Lookup(id string) (Node, bool) {
	parts := strings.Split(id, ":")
	switch {
	case len(parts) == 2 && parts[0] == "category":
		if std.Contains([]string{Ongoing, Finished}, parts[1]) {
			return CategoryNode{Category: parts[1]}, true
		}

	case len(parts) == 2 && parts[0] == "course":
		cid, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, false
		}
		if course, ok := c.course(cid); ok {
			return CourseNode{Course: course}, true
		}

	case len(parts) == 3 && parts[0] == "group":
		cid, err := strconv.Atoi(parts[1])
		if err != nil || !std.Contains([]string{Pending, Completed}, parts[2]) {
			return nil, false
		}
		if _, ok := c.course(cid); ok {
			return GroupNode{CourseID: cid, Group: parts[2]}, true
		}

	case len(parts) == 3 && parts[0] == "assignment":
		cid, err1 := strconv.Atoi(parts[1])
		aid, err2 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil {
			return nil, false
		}
		if a, ok := c.assignment(cid, aid); ok {
			return AssignmentNode{Assignment: a}, true
		}
	}
	return nil, false
}

func (c *Controller) course(id int) (site.Course, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, course := range c.courses {
		if course.ID == id {
			return course, true
		}
	}
	return site.Course{}, false
}

func (c *Controller) assignment(courseID, id int) (site.Assignment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[courseID]; ok {
		for _, list := range [][]site.Assignment{e.Pending, e.Completed} {
			for _, a := range list {
				if a.ID == id {
					return a, true
				}
			}
		}
	}
	for _, course := range c.courses {
		if course.ID != courseID {
			continue
		}
		for _, a := range course.Assignments {
			if a.ID == id {
				return a, true
			}
		}
	}
	return site.Assignment{}, false
}
