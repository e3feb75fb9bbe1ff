package matrix

import (
	"fmt"

	"codeberg.org/kvo/std"

	"github.com/RunningKuma/matrix-on-vscode/jsonv"
	"github.com/RunningKuma/matrix-on-vscode/site"
)

var (
	detailID          = jsonv.Keys("ca_id", "asgn_id", "assignment_id", "id")
	detailDescription = jsonv.Keys("description", "content", "body", "desc", "statement")

	attachmentBuckets = []jsonv.Accessor{
		jsonv.Key("files"),
		jsonv.Key("attachments"),
		jsonv.Key("resources"),
		jsonv.Key("materials"),
		jsonv.Path("config", "files"),
		jsonv.Path("config", "attachments"),
	}
	attachmentName = jsonv.Keys("name", "filename", "title", "label")
	attachmentURL  = jsonv.Keys("url", "download_url", "link", "href")
)

// NormalizeAssignmentDetail locates the assignment record in payload and
// normalizes it. When no record can be found a placeholder carrying
// assignmentID is returned.
func (n Normalizer) NormalizeAssignmentDetail(payload jsonv.Value, courseID, assignmentID int) site.AssignmentDetail {
	entry, ok := pickDetail(payload)
	if !ok {
		return site.AssignmentDetail{
			Assignment: site.Assignment{
				ID:       assignmentID,
				CourseID: courseID,
				Title:    fmt.Sprintf("题目 %d", assignmentID),
			},
		}
	}

	d := site.AssignmentDetail{Assignment: n.assignment(entry, courseID, 0)}
	d.ID = toInt(jsonv.ToNumber(jsonv.FirstDefined(entry, detailID...), float64(assignmentID)))
	d.Description = optString(entry, detailDescription)
	d.Attachments = attachments(entry)
	return d
}

// pickDetail finds the record holding the assignment. A falsy payload has
// none.
func pickDetail(payload jsonv.Value) (jsonv.Value, bool) {
	if !payload.Truthy() {
		return jsonv.Value{}, false
	}
	if list, ok := payload.Array(); ok {
		return first(list)
	}
	data := payload.Get("data")
	if list, ok := data.Array(); ok {
		return first(list)
	}
	for _, v := range []jsonv.Value{
		data.Get("assignment"),
		data.Get("assignmentDetail"),
		data.Get("detail"),
		payload.Get("assignment"),
		payload.Get("assignmentDetail"),
		payload.Get("detail"),
		data,
	} {
		if v.Truthy() {
			return v, true
		}
	}
	return payload, true
}

func first(list []jsonv.Value) (jsonv.Value, bool) {
	v, err := std.Access(list, 0)
	if err != nil {
		return jsonv.Value{}, false
	}
	return v, v.Truthy()
}

// attachments gathers every attachment bucket in order. Entries without a
// name, URL or code are skipped; nil is returned when nothing remains.
func attachments(entry jsonv.Value) []site.Attachment {
	var out []site.Attachment
	for _, bucket := range attachmentBuckets {
		list, ok := bucket(entry).Array()
		if !ok {
			continue
		}
		for _, item := range list {
			name := optString(item, attachmentName)
			url := optString(item, attachmentURL)
			code, _ := item.Get("code").Str()
			if name == "" && url == "" && code == "" {
				continue
			}
			if name == "" {
				name = url
			}
			if name == "" {
				name = "未命名附件"
			}
			out = append(out, site.Attachment{Name: name, URL: url, Code: code})
		}
	}
	return out
}
