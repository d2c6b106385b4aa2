// Package relay is the transport client for the sync service: it fetches
// remote delta batches keyed by a checkpoint token and pushes merged,
// re-encrypted payloads back. Retries and backoff live here, not in the
// engine.
package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hushcal/hushcal/common"
	"github.com/hushcal/hushcal/event"
	"github.com/hushcal/hushcal/log"
	"github.com/hushcal/hushcal/session"
	"github.com/hushcal/hushcal/syncer"
	"github.com/matryer/try"
)

type Client struct {
	Session  *session.Session
	PageSize int // override default number of deltas to request with each call
}

func NewClient(s *session.Session) *Client {
	return &Client{Session: s}
}

// FetchOutput is one page of remote deltas plus the relay-issued checkpoint
// to resume from. The checkpoint is monotonic and opaque to the client.
type FetchOutput struct {
	Events     []event.Snapshot `json:"events"`
	Checkpoint string           `json:"checkpoint"`
	More       bool             `json:"more"`
}

type fetchRequest struct {
	CalendarID string `json:"calendar_id"`
	Checkpoint string `json:"checkpoint"`
	Limit      int    `json:"limit"`
}

type pushRequest struct {
	CalendarID string        `json:"calendar_id"`
	Checkpoint string        `json:"checkpoint"`
	Pushes     []syncer.Push `json:"pushes"`
}

type pushResponse struct {
	Checkpoint string `json:"checkpoint"`
}

// FetchDeltas retrieves every delta since the checkpoint, following relay
// paging. Responses that are too large reduce the page size and retry.
func (c *Client) FetchDeltas(checkpoint string) (out FetchOutput, err error) {
	if !c.Session.Valid() {
		return out, fmt.Errorf("fetchDeltas | session is invalid")
	}

	out.Checkpoint = checkpoint

	for {
		var page FetchOutput

		rErr := try.Do(func(attempt int) (bool, error) {
			ps := common.PageSize
			if c.PageSize > 0 {
				ps = c.PageSize
			}

			log.DebugPrint(c.Session.Debug, fmt.Sprintf("fetchDeltas | attempt %d with page size %d", attempt, ps), common.MaxDebugChars)

			var fErr error
			page, fErr = c.fetchPage(out.Checkpoint, ps)
			if fErr != nil && strings.Contains(strings.ToLower(fErr.Error()), "too large") {
				c.resizeForRetry()
				log.DebugPrint(c.Session.Debug,
					fmt.Sprintf("fetchDeltas | response too large so reducing page size to %d", c.PageSize),
					common.MaxDebugChars)
			}

			return attempt < common.MaxRequestRetries, fErr
		})
		if rErr != nil {
			return out, fmt.Errorf("fetchDeltas | %w", rErr)
		}

		out.Events = append(out.Events, page.Events...)
		out.Checkpoint = page.Checkpoint

		if !page.More {
			break
		}
	}

	log.DebugPrint(c.Session.Debug,
		fmt.Sprintf("fetchDeltas | relay returned %d deltas with checkpoint %s", len(out.Events), out.Checkpoint),
		common.MaxDebugChars)

	return out, nil
}

func (c *Client) resizeForRetry() {
	if c.PageSize == 0 {
		c.PageSize = common.PageSize
	}

	c.PageSize /= 2
	if c.PageSize < 1 {
		c.PageSize = 1
	}
}

func (c *Client) fetchPage(checkpoint string, limit int) (page FetchOutput, err error) {
	body, err := c.post(common.SyncPath, fetchRequest{
		CalendarID: c.Session.CalendarID,
		Checkpoint: checkpoint,
		Limit:      limit,
	})
	if err != nil {
		return
	}

	if err = json.Unmarshal(body, &page); err != nil {
		return page, fmt.Errorf("fetchPage | failed to unmarshal response: %w", err)
	}

	return page, nil
}

// Push delivers merged payloads and returns the relay's new checkpoint.
func (c *Client) Push(pushes []syncer.Push, checkpoint string) (newCheckpoint string, err error) {
	if !c.Session.Valid() {
		return "", fmt.Errorf("push | session is invalid")
	}

	if len(pushes) == 0 {
		return checkpoint, nil
	}

	body, err := c.post(common.SyncPath+"/push", pushRequest{
		CalendarID: c.Session.CalendarID,
		Checkpoint: checkpoint,
		Pushes:     pushes,
	})
	if err != nil {
		return "", fmt.Errorf("push | %w", err)
	}

	var pr pushResponse

	if err = json.Unmarshal(body, &pr); err != nil {
		return "", fmt.Errorf("push | failed to unmarshal response: %w", err)
	}

	log.DebugPrint(c.Session.Debug,
		fmt.Sprintf("push | delivered %d payloads, new checkpoint %s", len(pushes), pr.Checkpoint),
		common.MaxDebugChars)

	return pr.Checkpoint, nil
}

func (c *Client) post(path string, payload any) (respBody []byte, err error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, c.Session.Server+path, bytes.NewReader(b))
	if err != nil {
		return
	}

	req.Header.Set(common.HeaderContentType, common.APIContentType)

	httpClient := c.Session.HTTPClient
	if httpClient == nil {
		httpClient = common.NewHTTPClient()
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return
	}

	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return nil, fmt.Errorf("response too large")
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("relay returned status %d: %s", resp.StatusCode, respBody)
	}

	return respBody, nil
}
