package data

// Stage is a task's position in its lifecycle.
type Stage string

const (
	StageInfo      Stage = "Info"
	StageDownload  Stage = "Download"
	StageUpload    Stage = "Upload"
	StageDone      Stage = "Done"
	StageCancelled Stage = "Cancelled"
	StageFailed    Stage = "Failed"
)

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	switch s {
	case StageDone, StageCancelled, StageFailed:
		return true
	}
	return false
}

var next = map[Stage]Stage{
	StageInfo:     StageDownload,
	StageDownload: StageUpload,
	StageUpload:   StageDone,
}

// CanTransition reports whether a task may move from one stage to another.
// Stages only move forward one step at a time; Cancelled and Failed are
// reachable from any non-terminal stage.
func CanTransition(from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageCancelled || to == StageFailed {
		return true
	}
	return next[from] == to
}

// Action is what the user chose to do with a parked task.
type Action string

const (
	// ActionForward downloads the video and uploads it to the broadcast chat.
	ActionForward Action = "forward"
	// ActionDeliver downloads the video and sends it back to the requester.
	ActionDeliver Action = "deliver"
	// ActionPhotos extracts slideshow images and sends them to the requester.
	ActionPhotos Action = "photos"
	// ActionPhotosForward extracts slideshow images and sends them to the
	// broadcast chat.
	ActionPhotosForward Action = "photos-forward"
)

// PhotosOnly reports whether the action applies only to slideshow sources.
func (a Action) PhotosOnly() bool {
	return a == ActionPhotos || a == ActionPhotosForward
}

// Broadcast reports whether the action delivers to the broadcast chat rather
// than back to the requesting user.
func (a Action) Broadcast() bool {
	return a == ActionForward || a == ActionPhotosForward
}
