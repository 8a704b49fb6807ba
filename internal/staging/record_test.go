package staging_test

import (
	"testing"

	"github.com/JaimeStill/sentio/internal/labels"
	"github.com/JaimeStill/sentio/internal/staging"
)

func validated(m labels.Modality, agrees bool, final labels.Label) staging.Record {
	return staging.Record{
		Modality:            m,
		HumanValidated:      true,
		HumanAgrees:         &agrees,
		FinalClassification: &final,
	}
}

func TestCompute(t *testing.T) {
	records := []staging.Record{
		{Modality: labels.Vision},
		{Modality: labels.Audio},
		validated(labels.Vision, true, labels.Healthy),
		validated(labels.Vision, false, labels.Sick),
		validated(labels.Audio, true, labels.Distress),
		validated(labels.Vision, true, labels.Healthy),
	}

	stats := staging.Compute(records)

	if stats.TotalStaged != 6 || stats.PendingReview != 2 || stats.Validated != 4 {
		t.Errorf("totals: got %+v", stats)
	}
	if stats.AICorrect != 3 || stats.AIIncorrect != 1 || stats.Accuracy != 0.75 {
		t.Errorf("accuracy: got %+v", stats)
	}

	vision := stats.ByModality[labels.Vision]
	if vision.Total != 4 || vision.Correct != 2 {
		t.Errorf("vision: got %+v", vision)
	}
	if audio := stats.ByModality[labels.Audio]; audio.Total != 2 || audio.Correct != 1 {
		t.Errorf("audio: got %+v", audio)
	}
	if stats.ByClassification[labels.Healthy] != 2 || stats.ByClassification[labels.Sick] != 1 || stats.ByClassification[labels.Distress] != 1 {
		t.Errorf("by classification: got %v", stats.ByClassification)
	}
}

func TestComputeEmpty(t *testing.T) {
	stats := staging.Compute(nil)
	if stats.TotalStaged != 0 || stats.Accuracy != 0 {
		t.Errorf("got %+v", stats)
	}
}

func TestConfigDestination(t *testing.T) {
	var cfg staging.Config
	if err := cfg.Finalize(nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		modality labels.Modality
		final    labels.Label
		want     string
	}{
		{labels.Vision, labels.Healthy, "healthy_images"},
		{labels.Vision, labels.Sick, "sick_images"},
		{labels.Vision, labels.Unknown, "sick_images"},
		{labels.Audio, labels.Normal, "healthy_audio"},
		{labels.Audio, labels.Distress, "sick_audio"},
	}
	for _, tt := range tests {
		if got := cfg.Destination(tt.modality, tt.final); got != tt.want {
			t.Errorf("Destination(%s, %s): got %q, want %q", tt.modality, tt.final, got, tt.want)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  staging.Config
	}{
		{"duplicate folder", staging.Config{HealthyImagesFolder: "verified", SickImagesFolder: "verified"}},
		{"parent traversal", staging.Config{StagingFolder: "../outside"}},
		{"bad ttl", staging.Config{PreviewTTL: "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
