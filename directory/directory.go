// Package directory resolves attendee addresses to identity classes. Internal
// users resolve to a calendar ID and a long-term public key; everyone else is
// external and can only be reached over plaintext channels such as email.
package directory

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hushcal/hushcal/common"
	"github.com/hushcal/hushcal/log"
)

type Class string

const (
	ClassInternal Class = "internal"
	ClassExternal Class = "external"
)

// Result describes the identity class of an address. CalendarID, PublicKey and
// PublicKeyID are only set for internal users.
type Result struct {
	Class       Class  `json:"class"`
	CalendarID  string `json:"calendar_id,omitempty"`
	PublicKey   string `json:"public_key,omitempty"`
	PublicKeyID string `json:"public_key_id,omitempty"`
}

// Directory is the identity lookup consumed by attendee resolution. Lookup
// errors are expected to degrade to external classification at the call site,
// never to block an invite.
type Directory interface {
	Lookup(address string) (Result, error)
}

// Static is a fixed address to identity mapping, useful for tests and for
// callers that prefetch their directory.
type Static map[string]Result

func (s Static) Lookup(address string) (Result, error) {
	r, ok := s[address]
	if !ok {
		return Result{Class: ClassExternal}, nil
	}

	return r, nil
}

// Client looks up identities against a directory service.
type Client struct {
	Server     string
	HTTPClient *retryablehttp.Client
	Debug      bool
}

func NewClient(server string, debug bool) *Client {
	return &Client{
		Server:     server,
		HTTPClient: common.NewHTTPClient(),
		Debug:      debug,
	}
}

func (c *Client) Lookup(address string) (r Result, err error) {
	reqURL := c.Server + common.DirectoryPath + "?address=" + url.QueryEscape(address)

	req, err := retryablehttp.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return
	}

	req.Header.Set(common.HeaderContentType, common.APIContentType)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return r, fmt.Errorf("directory lookup | %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return Result{Class: ClassExternal}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return r, fmt.Errorf("directory lookup | unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}

	log.DebugPrint(c.Debug, fmt.Sprintf("directory lookup | response: %s", body), common.MaxDebugChars)

	if err = json.Unmarshal(body, &r); err != nil {
		return r, fmt.Errorf("directory lookup | failed to unmarshal response: %w", err)
	}

	return r, nil
}
