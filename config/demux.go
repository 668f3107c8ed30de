// Package config demultiplexes the single flat key/value map a pipeline is
// launched with into the per-component settings each scaffold and worker
// constructor expects, the way loader.serialization.go's toMap/fromMap pair
// demultiplexes a Serialization's attributes map in the teacher repo.
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Stage prefixes route flat kwargs to the worker constructor they belong to.
const (
	PrefixExtractionWorker = "exw"
	PrefixInferenceWorker  = "inw"
	PrefixMergeWorker      = "mew"
	PrefixToCSVWorker      = "tocsvw"
	PrefixTrainWorker      = "trw"
)

// Scaffold prefixes route flat kwargs to a scaffold's own settings
// (addresses, fan-out width) as distinct from the worker(s) it supervises.
const (
	PrefixVentilator = "__v"
	PrefixCollator   = "__c"
	PrefixParallel   = "__p"
	PrefixSink       = "__s"
)

// Sep separates a prefix from the key it qualifies, e.g. "exw.batch_size".
const Sep = "."

// Demux splits a flat map into the subset of entries under each requested
// prefix, with the prefix and separator stripped from the resulting keys.
// An entry not claimed by any prefix is left out silently, matching the
// teacher's attributes map which tolerates unknown keys per vertex type.
func Demux(flat map[string]interface{}, prefixes ...string) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(prefixes))
	for _, p := range prefixes {
		out[p] = map[string]interface{}{}
	}

	for k, v := range flat {
		prefix, rest, ok := splitPrefix(k)
		if !ok {
			continue
		}
		if bucket, claimed := out[prefix]; claimed {
			bucket[rest] = v
		}
	}

	return out
}

func splitPrefix(key string) (prefix, rest string, ok bool) {
	i := strings.Index(key, Sep)
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// Decode fills dst (a pointer to a struct with mapstructure tags) from a
// demultiplexed bucket, the same decoding library the teacher uses for
// Serialization.Options.
func Decode(bucket map[string]interface{}, dst interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("config: building decoder: %w", err)
	}
	if err := dec.Decode(bucket); err != nil {
		return fmt.Errorf("config: decoding: %w", err)
	}
	return nil
}
