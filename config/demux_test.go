package config

import (
	"testing"
	"time"
)

func TestDemuxRoutesByPrefix(t *testing.T) {
	flat := map[string]interface{}{
		"exw.batch_size":    32,
		"exw.path":          "/data",
		"inw.model_path":    "/models/a",
		"__v.pull":          "127.0.0.1:6000",
		"unprefixed_noise":  "ignored",
		"unknown.something": "dropped unless claimed",
	}

	out := Demux(flat, PrefixExtractionWorker, PrefixInferenceWorker, PrefixVentilator)

	exw := out[PrefixExtractionWorker]
	if exw["batch_size"] != 32 || exw["path"] != "/data" {
		t.Fatalf("exw bucket = %v", exw)
	}

	if out[PrefixInferenceWorker]["model_path"] != "/models/a" {
		t.Fatalf("inw bucket = %v", out[PrefixInferenceWorker])
	}

	if out[PrefixVentilator]["pull"] != "127.0.0.1:6000" {
		t.Fatalf("__v bucket = %v", out[PrefixVentilator])
	}
}

func TestDemuxUnclaimedPrefixDropped(t *testing.T) {
	flat := map[string]interface{}{"mew.key": "value"}
	out := Demux(flat, PrefixExtractionWorker)
	if len(out[PrefixExtractionWorker]) != 0 {
		t.Fatalf("expected mew.* entries dropped when mew not requested, got %v", out)
	}
}

func TestDecodeFillsStruct(t *testing.T) {
	bucket := map[string]interface{}{
		"pull":           "127.0.0.1:7000",
		"workers":        "4",
		"shutdown_grace": "2s",
	}

	var addrs ScaffoldAddresses
	if err := Decode(bucket, &addrs); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if addrs.Pull != "127.0.0.1:7000" {
		t.Errorf("Pull = %q", addrs.Pull)
	}
	if addrs.Workers != 4 {
		t.Errorf("Workers = %d, want 4 (weakly-typed string->int)", addrs.Workers)
	}
	if addrs.ShutdownGrace != 2*time.Second {
		t.Errorf("ShutdownGrace = %v, want 2s", addrs.ShutdownGrace)
	}
}
