package capture

import "testing"

func TestQualityPresetSettings(t *testing.T) {
	tests := []struct {
		preset  QualityPreset
		width   int
		height  int
		bitrate int
	}{
		{QualityLow, 1280, 720, 2_500_000},
		{QualityMedium, 1920, 1080, 5_000_000},
		{QualityHigh, 2560, 1440, 10_000_000},
		{QualityPreset("bogus"), 1920, 1080, 5_000_000}, // falls back to medium
	}

	for _, tt := range tests {
		w, h, b := tt.preset.Settings()
		if w != tt.width || h != tt.height || b != tt.bitrate {
			t.Errorf("%s: got %dx%d@%d, want %dx%d@%d",
				tt.preset, w, h, b, tt.width, tt.height, tt.bitrate)
		}
	}
}

func TestRecordingOptionsValidate(t *testing.T) {
	valid := RecordingOptions{SourceID: "screen-1", Quality: QualityHigh, FrameRate: 30}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid options rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*RecordingOptions)
	}{
		{"empty source", func(o *RecordingOptions) { o.SourceID = "" }},
		{"unknown quality", func(o *RecordingOptions) { o.Quality = "4k" }},
		{"frame rate zero", func(o *RecordingOptions) { o.FrameRate = 0 }},
		{"frame rate too high", func(o *RecordingOptions) { o.FrameRate = 61 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			if err := opts.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
