package resolver

import (
	"net/url"
	"path"
	"strings"
)

const hfScheme = "hf://"

// huggingFace accepts hf://{owner}/{repo}/{path}?rev=main, or hf://{repo}/{file}
// for repos without an owner. rev defaults to main.
func (r *Resolver) huggingFace(uri string) (*Resolved, error) {
	rawPath, rawQuery := splitQuery(strings.TrimPrefix(uri, hfScheme))
	parts := strings.Split(strings.Trim(rawPath, "/"), "/")
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return nil, invalid("hf uri has an empty or relative path segment: " + uri)
		}
	}
	if len(parts) < 2 {
		return nil, invalid("hf uri must be hf://repo/path or hf://owner/repo/path")
	}
	var repoID, filePath string
	if len(parts) == 2 {
		repoID, filePath = parts[0], parts[1]
	} else {
		repoID, filePath = parts[0]+"/"+parts[1], path.Join(parts[2:]...)
	}
	rev := "main"
	if rawQuery != "" {
		q, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, invalid("hf uri query: " + err.Error())
		}
		if v := q.Get("rev"); v != "" {
			rev = v
		}
	}
	escaped := make([]string, 0, 4)
	for _, seg := range strings.Split(filePath, "/") {
		escaped = append(escaped, strings.ReplaceAll(url.PathEscape(seg), "+", "%2B"))
	}
	return &Resolved{
		URL:      r.hfBase + "/" + repoID + "/resolve/" + url.PathEscape(rev) + "/" + strings.Join(escaped, "/"),
		FileName: path.Base(filePath),
	}, nil
}
