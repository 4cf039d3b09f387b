package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/ercot-data/internal/model"
)

// archiveListPageSize is the page size used for archive listings.
const archiveListPageSize = 1000

// ArchiveDocument is one downloadable historical report.
type ArchiveDocument struct {
	DocID        int64
	FriendlyName string
	PostDatetime string
	DownloadURL  string
}

type archiveLink struct {
	Href string `json:"href"`
}

type archiveItem struct {
	DocID        int64  `json:"docId"`
	FriendlyName string `json:"friendlyName"`
	PostDatetime string `json:"postDatetime"`
	Links        struct {
		Endpoint archiveLink `json:"endpoint"`
	} `json:"_links"`
}

type archivePage struct {
	Meta     *Meta         `json:"_meta"`
	Archives []archiveItem `json:"archives"`
}

// ListArchives returns every archive document of product posted between
// from and to, both days inclusive.
func (c *Client) ListArchives(ctx context.Context, product string, from, to time.Time) ([]ArchiveDocument, error) {
	path := "archive/" + strings.ToLower(product)

	query := url.Values{}
	query.Set("size", strconv.Itoa(archiveListPageSize))
	query.Set("postDatetimeFrom", from.Format(model.DateLayout)+"T00:00:00.000")
	query.Set("postDatetimeTo", to.Format(model.DateLayout)+"T23:59:59.999")

	var docs []ArchiveDocument

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		query.Set("page", strconv.Itoa(n))
		resp, err := c.Send(ctx, Request{Path: path, Query: query})
		if err != nil {
			return nil, fmt.Errorf("list archives %s page %d: %w", product, n, err)
		}

		var pg archivePage
		if err := json.Unmarshal(resp.Body, &pg); err != nil {
			return nil, &MalformedResponseError{URL: path, Err: fmt.Errorf("decode archive page %d: %w", n, err)}
		}

		for _, a := range pg.Archives {
			docs = append(docs, ArchiveDocument{
				DocID:        a.DocID,
				FriendlyName: a.FriendlyName,
				PostDatetime: a.PostDatetime,
				DownloadURL:  a.Links.Endpoint.Href,
			})
		}

		if len(pg.Archives) == 0 || pg.Meta == nil || n >= pg.Meta.TotalPages {
			break
		}
	}

	c.logger.Info("listed archives", "product", product, "documents", len(docs))
	return docs, nil
}

// DownloadBundle posts docIDs to the bundle endpoint and returns the zip
// body. Callers keep len(docIDs) within the product's bundle limit.
func (c *Client) DownloadBundle(ctx context.Context, product string, docIDs []int64) ([]byte, error) {
	if len(docIDs) == 0 {
		return nil, errors.New("download bundle: no document ids")
	}

	body, err := json.Marshal(struct {
		DocIDs []int64 `json:"docIds"`
	}{docIDs})
	if err != nil {
		return nil, fmt.Errorf("marshal doc ids: %w", err)
	}

	resp, err := c.Send(ctx, Request{
		Method: http.MethodPost,
		Path:   "archive/" + strings.ToLower(product) + "/download",
		Header: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/octet-stream",
		},
		Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("download bundle %s (%d docs): %w", product, len(docIDs), err)
	}

	return resp.Body, nil
}
