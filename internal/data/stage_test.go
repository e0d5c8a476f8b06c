package data

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Stage
		to   Stage
		want bool
	}{
		{"info to download", StageInfo, StageDownload, true},
		{"download to upload", StageDownload, StageUpload, true},
		{"upload to done", StageUpload, StageDone, true},
		{"info skips to upload", StageInfo, StageUpload, false},
		{"info skips to done", StageInfo, StageDone, false},
		{"backward", StageUpload, StageDownload, false},
		{"info to cancelled", StageInfo, StageCancelled, true},
		{"download to cancelled", StageDownload, StageCancelled, true},
		{"upload to failed", StageUpload, StageFailed, true},
		{"done is absorbing", StageDone, StageCancelled, false},
		{"cancelled is absorbing", StageCancelled, StageDownload, false},
		{"failed is absorbing", StageFailed, StageFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStageTerminal(t *testing.T) {
	for _, s := range []Stage{StageDone, StageCancelled, StageFailed} {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Stage{StageInfo, StageDownload, StageUpload} {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestActionHelpers(t *testing.T) {
	if !ActionPhotos.PhotosOnly() || !ActionPhotosForward.PhotosOnly() {
		t.Fatal("photo actions should be photos-only")
	}
	if ActionForward.PhotosOnly() || ActionDeliver.PhotosOnly() {
		t.Fatal("video actions should not be photos-only")
	}
	if !ActionForward.Broadcast() || !ActionPhotosForward.Broadcast() {
		t.Fatal("forward actions should broadcast")
	}
	if ActionDeliver.Broadcast() || ActionPhotos.Broadcast() {
		t.Fatal("deliver actions should not broadcast")
	}
}

func TestTaskClone(t *testing.T) {
	orig := &Task{ID: 1, UserID: 2, URL: "https://v.example/x", Stage: StageInfo,
		Meta: &Metadata{Title: "a"}}
	c := orig.Clone()
	c.Stage = StageDownload
	c.Meta.Title = "b"
	if orig.Stage != StageInfo {
		t.Fatalf("clone mutated original stage: %s", orig.Stage)
	}
	if orig.Meta.Title != "a" {
		t.Fatalf("clone mutated original metadata: %s", orig.Meta.Title)
	}
}
