// Package browser defines the browser control capability the capture
// pipeline depends on, and an HTTP bridge client implementation that
// talks to the local gateway's browser-control port.
package browser

import (
	"context"
	"errors"

	"github.com/unbrowse/unbrowse/pkg/types"
)

// Unavailable is returned by every Capability method when the bridge
// is down; callers branch to DOM-free behavior on it.
var Unavailable = errors.New("browser control unavailable")

// WaitOptions narrows what Wait blocks on.
type WaitOptions struct {
	LoadState string `json:"loadState,omitempty"`
	Selector  string `json:"selector,omitempty"`
	TimeMs    int    `json:"timeMs,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

// SnapshotOptions controls the accessibility snapshot.
type SnapshotOptions struct {
	Format      string `json:"format,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Refs        bool   `json:"refs,omitempty"`
	Interactive bool   `json:"interactive,omitempty"`
	Labels      bool   `json:"labels,omitempty"`
}

// Element is one interactable node in a snapshot.
type Element struct {
	Ref     string   `json:"ref"`
	Tag     string   `json:"tag,omitempty"`
	Role    string   `json:"role,omitempty"`
	Name    string   `json:"name,omitempty"`
	Text    string   `json:"text,omitempty"`
	Value   string   `json:"value,omitempty"`
	Options []string `json:"options,omitempty"`
}

// Snapshot is the rendered page as the agent sees it.
type Snapshot struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Content  string    `json:"snapshot"`
	Elements []Element `json:"elements,omitempty"`
}

// Action is one page interaction.
type Action struct {
	Kind   string   `json:"kind"`
	Ref    string   `json:"ref,omitempty"`
	Text   string   `json:"text,omitempty"`
	Key    string   `json:"key,omitempty"`
	Values []string `json:"values,omitempty"`
}

// ActResult reports whether an action landed.
type ActResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ObservedRequest is one network request the browser recorded.
type ObservedRequest struct {
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	Status          int               `json:"status"`
	ResourceType    string            `json:"resourceType,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	PostData        string            `json:"postData,omitempty"`
	ResponseBody    string            `json:"responseBody,omitempty"`
	BodyEncoding    string            `json:"bodyEncoding,omitempty"`
	TsMs            int64             `json:"tsMs,omitempty"`
}

// Capability is the minimal browser contract the core depends on.
// Implementations must return Unavailable (possibly wrapped) from
// every method when the browser cannot be reached.
type Capability interface {
	IsAvailable(ctx context.Context) bool
	EnsureRunning(ctx context.Context) (bool, error)
	Navigate(ctx context.Context, url string) (bool, error)
	Wait(ctx context.Context, opts WaitOptions) (bool, error)
	TakeSnapshot(ctx context.Context, opts SnapshotOptions) (*Snapshot, error)
	Act(ctx context.Context, action Action) (*ActResult, error)
	Requests(ctx context.Context, clear bool) ([]ObservedRequest, error)
	Cookies(ctx context.Context) (types.Cookies, error)
	Storage(ctx context.Context, kind string) (map[string]string, error)
	Evaluate(ctx context.Context, js string) (any, error)
}
