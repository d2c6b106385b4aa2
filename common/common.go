package common

import (
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	// API.
	SyncPath      = "/v1/events/sync"      // remote path for fetching and pushing event deltas
	DirectoryPath = "/v1/directory/lookup" // remote path for resolving attendee addresses

	// PageSize is the maximum number of event deltas to request with each sync call.
	PageSize = 150

	TimeLayout = "2006-01-02T15:04:05.000Z"

	// LOGGING.
	LibName       = "hushcal" // name of library used in logging
	MaxDebugChars = 120       // number of characters to display when logging API response body

	// HTTP.
	MaxIdleConnections = 100 // HTTP transport limit
	RequestTimeout     = 30  // HTTP transport limit
	ConnectionTimeout  = 3   // HTTP transport dialer limit
	KeepAliveTimeout   = 60  // HTTP transport dialer limit
	MaxRequestRetries  = 3
)

func NewHTTPClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = MaxRequestRetries
	c.Backoff = retryablehttp.DefaultBackoff
	c.HTTPClient.Timeout = RequestTimeout * time.Second
	c.Logger = nil

	return c
}

const HeaderContentType = "Content-Type"

const APIContentType = "application/json"
