package provision

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/vbp1/cdcboot/internal/controlplane"
)

// SelectStreams keeps discovered streams whose name is exactly one of allow and configures
// each for full-refresh overwrite. Zero matches is an error wrapping ErrSchemaMismatch.
func SelectStreams(cat controlplane.Catalog, allow []string) ([]controlplane.ConfiguredStream, error) {
	want := make(map[string]bool, len(allow))
	for _, t := range allow {
		want[t] = true
	}

	var out []controlplane.ConfiguredStream
	found := make(map[string]bool)
	for _, s := range cat.Streams {
		if !want[s.Name] || found[s.Name] {
			continue
		}
		found[s.Name] = true
		pk := [][]string{}
		if s.HasID {
			pk = [][]string{{"id"}}
		}
		out = append(out, controlplane.ConfiguredStream{
			Stream: s.Stream,
			Config: controlplane.StreamConfig{
				Selected:            true,
				SyncMode:            controlplane.SyncModeFullRefresh,
				DestinationSyncMode: controlplane.DestinationSyncOverwrite,
				PrimaryKey:          pk,
				CursorField:         []string{},
			},
		})
		slog.Info("stream selected", "stream", s.Name, "primary_key", s.HasID)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: none of [%s] among %d discovered streams", ErrSchemaMismatch, strings.Join(allow, ", "), len(cat.Streams))
	}
	for _, t := range allow {
		if !found[t] {
			slog.Warn("allow-listed table not discovered", "table", t)
		}
	}
	return out, nil
}
