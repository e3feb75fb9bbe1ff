package matrix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	kerrors "codeberg.org/kvo/std/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/RunningKuma/matrix-on-vscode/codec"
	"github.com/RunningKuma/matrix-on-vscode/errors"
	"github.com/RunningKuma/matrix-on-vscode/jsonv"
	"github.com/RunningKuma/matrix-on-vscode/site"
	"github.com/RunningKuma/matrix-on-vscode/tests"
)

func newTestClient(f *tests.FakeMatrix, cookie string, opts ...Option) *Client {
	opts = append([]Option{WithBaseURL(f.URL + "/"), WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewClient(tests.Cookie(cookie), opts...)
}

func TestFetchCourses(t *testing.T) {
	f := tests.NewFakeMatrix(t)
	f.Handle(http.MethodGet, "/api/courses", 200, `{"data":[{"course_id":5,"name":"CS101","status":"ongoing"}]}`)

	courses, err := newTestClient(f, "sid=1").FetchCourses(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(courses) != 1 || courses[0].ID != 5 || courses[0].Title != "CS101" {
		t.Errorf("courses = %+v", courses)
	}

	reqs := f.Requests()
	if len(reqs) != 1 || reqs[0].Cookie != "sid=1" {
		t.Errorf("requests = %+v", reqs)
	}
}

func TestFetchHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(tests.Cookie("sid=2"), WithBaseURL(srv.URL))
	if _, err := c.FetchAssignments(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	if got.Get("Content-Type") != "application/json" || got.Get("Cookie") != "sid=2" {
		t.Errorf("headers = %v", got)
	}
}

func TestFetchHTTPError(t *testing.T) {
	f := tests.NewFakeMatrix(t)
	f.Handle(http.MethodGet, "/api/courses", 500, "server error")
	f.Handle(http.MethodGet, "/api/courses/1/assignments", 503, "")

	c := newTestClient(f, "sid=1")
	_, err := c.FetchCourses(context.Background())
	if err == nil || err.Error() != "server error" {
		t.Fatalf("err = %v, want server error", err)
	}
	var herr *site.HTTPError
	if !errors.As(err, &herr) || herr.Status != 500 {
		t.Errorf("err = %#v", err)
	}

	_, err = c.FetchAssignments(context.Background(), 1)
	if err == nil || err.Error() != "请求失败：503" {
		t.Errorf("empty body err = %v", err)
	}
}

func TestFetchWithoutCookie(t *testing.T) {
	f := tests.NewFakeMatrix(t)
	c := newTestClient(f, "")

	_, err := c.FetchCourses(context.Background())
	if !errors.Is(err, site.ErrNotSignedIn) || err.Error() != "当前未登录 Matrix" {
		t.Errorf("FetchCourses err = %v", err)
	}
	_, err = c.FetchAssignments(context.Background(), 1)
	if !errors.Is(err, site.ErrNotSignedIn) || err.Error() != "当前未登录 Matrix，无法获取题目列表" {
		t.Errorf("FetchAssignments err = %v", err)
	}
	_, err = c.FetchAssignmentDetail(context.Background(), 1, 2)
	if !errors.Is(err, site.ErrNotSignedIn) || err.Error() != "当前未登录 Matrix，无法获取题目详情" {
		t.Errorf("FetchAssignmentDetail err = %v", err)
	}

	if n := len(f.Requests()); n != 0 {
		t.Errorf("%d requests sent without a cookie", n)
	}

	if _, err := NewClient(nil).FetchCourses(context.Background()); !errors.Is(err, site.ErrNotSignedIn) {
		t.Errorf("nil sessions err = %v", err)
	}
}

func TestEnvelopeDecoding(t *testing.T) {
	inner := map[string]any{"assignments": []any{map[string]any{"ca_id": 10, "title": "HW1", "enddate": "2000-01-01"}}}
	sealed, ok := codec.Default().Encode(codec.AESGCM, inner)
	if !ok {
		t.Fatal("Encode failed")
	}
	envelope, _ := json.Marshal(map[string]string{"type": codec.AESGCM, "body": sealed})

	f := tests.NewFakeMatrix(t)
	f.Handle(http.MethodGet, "/api/courses/4/assignments", 200, string(envelope))
	f.Handle(http.MethodGet, "/api/courses/5/assignments", 200, `{"type":"aes-256-gcm","body":"broken","assignments":[{"ca_id":1}]}`)

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := newTestClient(f, "sid=1", WithMetrics(metrics))

	list, err := c.FetchAssignments(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != 10 || !list[0].IsFinished {
		t.Errorf("decoded assignments = %+v", list)
	}

	list, err = c.FetchAssignments(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != 1 {
		t.Errorf("fallback assignments = %+v", list)
	}

	if n := testutil.ToFloat64(metrics.decodeFailures.WithLabelValues("assignments")); n != 1 {
		t.Errorf("decode failures = %v", n)
	}
	if n := testutil.ToFloat64(metrics.requests.WithLabelValues("assignments", "200")); n != 2 {
		t.Errorf("requests = %v", n)
	}
}

func TestNonJSONBody(t *testing.T) {
	f := tests.NewFakeMatrix(t)
	f.Handle(http.MethodGet, "/api/courses", 200, "<html>maintenance</html>")
	f.Handle(http.MethodGet, "/api/courses/1/assignments/2", 200, "")

	c := newTestClient(f, "sid=1")
	courses, err := c.FetchCourses(context.Background())
	if err != nil || len(courses) != 0 {
		t.Errorf("courses = %v, %v", courses, err)
	}

	d, err := c.FetchAssignmentDetail(context.Background(), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != 2 || d.Title != "题目 2" {
		t.Errorf("placeholder = %+v", d)
	}
}

func TestDecodePayloadRawBodies(t *testing.T) {
	c := NewClient(nil)
	if v := c.decodePayload("courses", nil); !v.IsUndefined() {
		t.Errorf("empty body: kind = %v", v.Kind())
	}
	for _, body := range []string{" \n", `{"data":[1]}]`, "[1]}"} {
		v := c.decodePayload("courses", []byte(body))
		if s, ok := v.Str(); !ok || s != body {
			t.Errorf("%q: payload = %v", body, v)
		}
	}
	if v := c.decodePayload("courses", []byte(`{"data":[1]}`+"\n")); v.Kind() != jsonv.Object {
		t.Errorf("trailing newline: kind = %v", v.Kind())
	}
}

func TestLoginWithCookie(t *testing.T) {
	f := tests.NewFakeMatrix(t)
	f.HandleRoute(http.MethodGet, "/api/users/login", tests.Route{
		Status: 200,
		Body:   `{"status":"OK","data":{"username":"student"}}`,
		Header: http.Header{"Set-Cookie": {"sid=new; Path=/; HttpOnly", "csrf=t0k; Path=/"}},
	})

	res, err := newTestClient(f, "").LoginWithCookie(context.Background(), "sid=old")
	if err != nil {
		t.Fatal(err)
	}
	if res.Username() != "student" {
		t.Errorf("username = %q", res.Username())
	}
	if len(res.Cookies) != 2 || res.Cookie() != "sid=new; csrf=t0k" {
		t.Errorf("cookies = %v, joined %q", res.Cookies, res.Cookie())
	}
	if reqs := f.Requests(); reqs[0].Cookie != "sid=old" {
		t.Errorf("login sent cookie %q", reqs[0].Cookie)
	}
}

func TestLoginRejected(t *testing.T) {
	f := tests.NewFakeMatrix(t)
	f.Handle(http.MethodGet, "/api/users/login", 401, "unauthorized")

	_, err := newTestClient(f, "").LoginWithCookie(context.Background(), "sid=bad")
	if err == nil || err.Error() != "unauthorized" {
		t.Errorf("err = %v", err)
	}
}

func TestLoginWithCredentials(t *testing.T) {
	f := tests.NewFakeMatrix(t)
	f.HandleRoute(http.MethodGet, "/api/users/login", tests.Route{
		Header: http.Header{"Set-Cookie": {"pre=1"}},
		Body:   `{"status":"NOT_AUTHORIZED"}`,
	})
	f.HandleRoute(http.MethodPost, "/api/users/login", tests.Route{
		Header: http.Header{"Set-Cookie": {"sid=fresh; Path=/"}},
		Body:   `{"data":{"nickname":"stu"}}`,
	})

	res, err := newTestClient(f, "").LoginWithCredentials(context.Background(), "stu", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if res.Cookie() != "sid=fresh" || res.Username() != "stu" {
		t.Errorf("result = %+v", res)
	}

	reqs := f.Requests()
	if len(reqs) != 2 || reqs[0].Method != http.MethodGet || reqs[1].Method != http.MethodPost {
		t.Fatalf("requests = %+v", reqs)
	}
	sealed := string(reqs[1].Body)
	if strings.Count(sealed, ".") != 1 || strings.ContainsAny(sealed, `{"`) || strings.Contains(sealed, "secret") {
		t.Errorf("credentials sent as %s", sealed)
	}
	creds, ok := codec.Default().Decode(codec.AESGCM, sealed)
	if !ok {
		t.Fatal("cannot open credential envelope")
	}
	if u, _ := creds.Get("username").Str(); u != "stu" {
		t.Errorf("username in envelope = %q", u)
	}
	if p, _ := creds.Get("password").Str(); p != "secret" {
		t.Errorf("password in envelope = %q", p)
	}
}

func TestRateLimitCancelled(t *testing.T) {
	f := tests.NewFakeMatrix(t)
	f.Handle(http.MethodGet, "/api/courses", 200, `[]`)
	c := newTestClient(f, "sid=1", WithRateLimit(0.001, 1))

	if _, err := c.FetchCourses(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.FetchCourses(ctx); err == nil {
		t.Error("second request was not limited")
	}
	if n := f.Hits(http.MethodGet, "/api/courses"); n != 1 {
		t.Errorf("hits = %d", n)
	}
}

func TestTransportErrorChain(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(tests.Cookie("sid=1"), WithBaseURL(url)).FetchCourses(context.Background())
	if err == nil {
		t.Fatal("request to a closed server succeeded")
	}
	kerr, ok := err.(kerrors.Error)
	if !ok {
		t.Fatalf("error %T does not carry a traceback", err)
	}
	if kerr.Text() != "cannot execute request" || kerr.Parent() == nil {
		t.Errorf("chain = %q", kerr.Error())
	}
	if !strings.HasSuffix(kerr.Func(), "(*Client).do") || !strings.HasSuffix(kerr.File(), "client.go") {
		t.Errorf("origin = %s in %s", kerr.Func(), kerr.File())
	}
	if !strings.HasPrefix(err.Error(), "cannot execute request: ") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestTimeoutLeavesSharedClient(t *testing.T) {
	shared := &http.Client{}
	opts := [][]Option{
		{WithTimeout(5 * time.Second), WithHTTPClient(shared)},
		{WithHTTPClient(shared), WithTimeout(5 * time.Second)},
	}
	for i, o := range opts {
		c := NewClient(nil, o...)
		if c.http == shared {
			t.Errorf("%d: timeout applied to the shared client", i)
		}
		if c.http.Timeout != 5*time.Second {
			t.Errorf("%d: timeout = %v", i, c.http.Timeout)
		}
	}
	if shared.Timeout != 0 {
		t.Errorf("shared client mutated: timeout = %v", shared.Timeout)
	}

	if c := NewClient(nil, WithHTTPClient(shared)); c.http != shared {
		t.Error("client without a timeout option was copied")
	}
}
