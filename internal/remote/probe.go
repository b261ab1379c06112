package remote

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// ServiceStatus reports reachability of one downstream service.
type ServiceStatus struct {
	Name      string
	BaseURL   string
	Reachable bool
}

// Probe checks whether a service answers HTTP at all. Any response,
// including an error status, counts as reachable; only transport failures
// do not.
func Probe(ctx context.Context, name, baseURL string) ServiceStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := ServiceStatus{Name: name, BaseURL: baseURL}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/", nil)
	if err != nil {
		return status
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return status
	}
	resp.Body.Close()
	status.Reachable = true
	return status
}

// ProbeAll probes the three pipeline services in parallel and returns their
// statuses in recognize, generate, synthesize order.
func ProbeAll(ctx context.Context, recognizeURL, generateURL, synthesizeURL string) []ServiceStatus {
	statuses := make([]ServiceStatus, 3)
	targets := []struct {
		name string
		url  string
	}{
		{"atot", recognizeURL},
		{"ttot", generateURL},
		{"tts", synthesizeURL},
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			statuses[i] = Probe(ctx, t.name, t.url)
			return nil
		})
	}
	g.Wait()
	return statuses
}
