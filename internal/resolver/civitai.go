package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
	"github.com/jxwalker/assetfetch/internal/util"
)

const civitaiScheme = "civitai://"

type civitModel struct {
	Name          string         `json:"name"`
	ModelVersions []civitVersion `json:"modelVersions"`
}

type civitVersion struct {
	ID      int         `json:"id"`
	Name    string      `json:"name"`
	ModelID int         `json:"modelId"`
	Files   []civitFile `json:"files"`
}

type civitFile struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Primary     bool   `json:"primary"`
	DownloadURL string `json:"downloadUrl"`
}

// civitAI accepts civitai://model/{id}?version={versionId}&file={substring}.
// Without a version the newest one is used. The file is picked by name
// substring, then the primary file, then the first of type Model.
func (r *Resolver) civitAI(ctx context.Context, uri string) (*Resolved, error) {
	rawPath, rawQuery := splitQuery(strings.TrimPrefix(uri, civitaiScheme))
	parts := strings.Split(strings.Trim(rawPath, "/"), "/")
	if len(parts) != 2 || parts[0] != "model" {
		return nil, invalid("civitai uri must be civitai://model/{id}")
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return nil, invalid("civitai model id must be numeric: " + parts[1])
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, invalid("civitai uri query: " + err.Error())
	}
	versionID := q.Get("version")
	fileSub := strings.ToLower(q.Get("file"))

	var v civitVersion
	if versionID != "" {
		if err := r.civitGet(ctx, "/api/v1/model-versions/"+url.PathEscape(versionID), &v); err != nil {
			return nil, err
		}
	} else {
		var m civitModel
		if err := r.civitGet(ctx, "/api/v1/models/"+url.PathEscape(parts[1]), &m); err != nil {
			return nil, err
		}
		if len(m.ModelVersions) == 0 {
			return nil, fetcherrors.HTTPStatus("resolve civitai", http.StatusNotFound, "model has no versions")
		}
		v = m.ModelVersions[0]
		for _, vv := range m.ModelVersions {
			if vv.ID > v.ID {
				v = vv
			}
		}
	}
	f, ok := pickFile(v.Files, fileSub)
	if !ok {
		return nil, fetcherrors.HTTPStatus("resolve civitai", http.StatusNotFound, fmt.Sprintf("version %d has no downloadable file", v.ID))
	}
	return &Resolved{URL: f.DownloadURL, FileName: util.SafeFileName(f.Name)}, nil
}

func pickFile(files []civitFile, sub string) (civitFile, bool) {
	pick := -1
	if sub != "" {
		for i, f := range files {
			if strings.Contains(strings.ToLower(f.Name), sub) {
				pick = i
				break
			}
		}
	}
	if pick == -1 {
		for i, f := range files {
			if f.Primary {
				pick = i
				break
			}
		}
	}
	if pick == -1 {
		for i, f := range files {
			if strings.EqualFold(f.Type, "Model") {
				pick = i
				break
			}
		}
	}
	if pick == -1 && len(files) > 0 {
		pick = 0
	}
	if pick == -1 || files[pick].DownloadURL == "" {
		return civitFile{}, false
	}
	return files[pick], true
}

func (r *Resolver) civitGet(ctx context.Context, p string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.civitaiBase+p, nil)
	if err != nil {
		return fetcherrors.New(fetcherrors.KindInvalidURL, "resolve civitai", err)
	}
	req.Header.Set("Accept", "application/json")
	if tok := r.civitaiToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fetcherrors.New(fetcherrors.KindCancelled, "resolve civitai", ctx.Err())
		}
		return fetcherrors.New(fetcherrors.KindNetwork, "resolve civitai", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return fetcherrors.HTTPStatus("resolve civitai", resp.StatusCode, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fetcherrors.New(fetcherrors.KindNetwork, "resolve civitai", fmt.Errorf("decode %s: %w", p, err))
	}
	return nil
}

func (r *Resolver) civitaiToken() string {
	if r.cfg == nil {
		return ""
	}
	env := strings.TrimSpace(r.cfg.Sources.CivitAI.TokenEnv)
	if env == "" {
		env = "CIVITAI_TOKEN"
	}
	return strings.TrimSpace(r.getenv(env))
}
