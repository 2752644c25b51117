// Package provider defines the uniform create/poll/download contract
// every external video-generation vendor satisfies (spec §4.4) and a
// factory that looks clients up by provider id.
package provider

import (
	"context"
	"fmt"
)

// Status is the normalized vocabulary every provider's GetTask result is
// mapped into, regardless of the vendor's own status strings.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// CreateRequest carries everything a provider needs to submit a
// generation job; fields are snapshotted from the Segment at submit time.
type CreateRequest struct {
	Prompt       string
	Duration     int
	Resolution   string // "horizontal" | "vertical"
	IsPro        bool
	ImageURL     string // optional reference frame
	ProviderModel string // provider-specific model id chosen by the router
}

// TaskStatus is the normalized poll result.
type TaskStatus struct {
	Status   Status
	Progress int
	VideoURL string
	Raw      map[string]any
}

// Client is the contract every vendor implementation satisfies. All three
// methods may return an error carrying a human-readable message; the
// worker runs that message through the classifier rather than requiring
// providers to pre-classify their own failures.
type Client interface {
	CreateTask(ctx context.Context, req CreateRequest) (providerTaskID string, err error)
	GetTask(ctx context.Context, providerTaskID string) (TaskStatus, error)
	DownloadVideo(ctx context.Context, providerTaskID, videoURL, destPath string) error
}

// Factory looks up a Client by provider id. Providers register themselves
// into a Factory at process startup (see NewFactory in this package and
// the concrete constructors in sorahk.go / openai.go / aihubmix.go).
type Factory struct {
	builders map[string]func() Client
}

func NewFactory() *Factory {
	return &Factory{builders: make(map[string]func() Client)}
}

// Register attaches a constructor for a provider id. Called once per
// provider at startup; not safe for concurrent use with Get.
func (f *Factory) Register(providerID string, build func() Client) {
	f.builders[providerID] = build
}

// Get constructs (or would, in a pooled implementation, retrieve) a
// client for providerID. Providers are cheap to construct (an HTTP
// client plus headers), so a fresh instance per call keeps the factory
// free of shared mutable state across worker goroutines.
func (f *Factory) Get(providerID string) (Client, error) {
	build, ok := f.builders[providerID]
	if !ok {
		return nil, fmt.Errorf("provider: unknown provider id %q", providerID)
	}
	return build(), nil
}
