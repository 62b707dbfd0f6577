package headerprof

import (
	"context"
	"log/slog"

	"github.com/unbrowse/unbrowse/pkg/types"
)

// Snapshotter supplies live header values for a page, typically over
// the browser control channel.
type Snapshotter interface {
	SnapshotHeaders(ctx context.Context, pageURL string, port int) (map[string]string, error)
}

// PrimeHeaders refreshes a profile's sample values from a live
// snapshot. Captured values win; profile samples fill the gaps. A
// snapshot failure degrades to the stored samples.
func PrimeHeaders(ctx context.Context, pageURL string, profile *types.HeaderProfile, port int, capturer Snapshotter) map[string]string {
	primed := make(map[string]string)
	if profile == nil {
		return primed
	}

	liveByLower := make(map[string]string)
	if capturer != nil {
		snapshot, err := capturer.SnapshotHeaders(ctx, pageURL, port)
		if err != nil {
			slog.Warn("live header snapshot failed, using profile samples",
				slog.String("domain", profile.Domain),
				slog.String("error", err.Error()),
			)
		}
		for name, value := range snapshot {
			liveByLower[lowerName(name)] = value
		}
	}

	for name, ph := range profile.CommonHeaders {
		if v, ok := liveByLower[lowerName(name)]; ok && v != "" {
			primed[name] = v
		} else {
			primed[name] = ph.Value
		}
	}
	return primed
}
