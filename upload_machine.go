package authflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// UploadPhase identifies where a profile-picture upload currently is.
type UploadPhase string

const (
	UploadPhaseIdle      UploadPhase = "idle"
	UploadPhaseUploading UploadPhase = "uploading"
	UploadPhaseError     UploadPhase = "error"
)

// UploadState is the machine state for the profile-picture widget. Err is
// cleared the moment a new upload starts.
type UploadState struct {
	Phase UploadPhase
	Path  string
	Err   error
}

// UploadEvent is the union of events the upload machine accepts.
type UploadEvent interface{ uploadEvent() }

// FileSelected carries the picked file's contents and its owner.
type FileSelected struct {
	UserID string
	Name   string
	Data   []byte
}

// UploadFinished reports where the blob landed.
type UploadFinished struct {
	Path string
}

// UploadFailed reports a failed store write.
type UploadFailed struct {
	Err error
}

func (FileSelected) uploadEvent()   {}
func (UploadFinished) uploadEvent() {}
func (UploadFailed) uploadEvent()   {}

// PutBlobCommand writes the selected file to the blob store.
type PutBlobCommand struct {
	UserID string
	Path   string
	Data   []byte
}

// UploadTransition is the pure step function for the upload widget. Each
// accepted selection yields exactly one store write; selections made while
// an upload is in flight are ignored.
func UploadTransition(state UploadState, ev UploadEvent) Step[UploadState] {
	switch ev := ev.(type) {
	case FileSelected:
		if state.Phase == UploadPhaseUploading {
			return Next(state)
		}
		path := fmt.Sprintf("profile-pictures/%s/%s", ev.UserID, ev.Name)
		return Next(
			UploadState{Phase: UploadPhaseUploading, Path: path},
			PutBlobCommand{UserID: ev.UserID, Path: path, Data: ev.Data},
		)

	case UploadFinished:
		if state.Phase != UploadPhaseUploading {
			return Next(state)
		}
		return Next(UploadState{Phase: UploadPhaseIdle, Path: ev.Path})

	case UploadFailed:
		if state.Phase != UploadPhaseUploading {
			return Next(state)
		}
		return Next(UploadState{Phase: UploadPhaseError, Path: state.Path, Err: ev.Err})
	}

	return Next(state)
}

// UploadFlowConfig wires an upload machine to a blob store. When Users is
// set, a finished upload also records the stored path on the user record.
type UploadFlowConfig struct {
	Store  BlobStore
	Users  Users
	Logger Logger
}

// UploadFlow is a running profile-picture upload widget.
type UploadFlow struct {
	cfg    UploadFlowConfig
	runner *Runner[UploadState, UploadEvent]
}

// NewUploadFlow starts an idle upload flow.
func NewUploadFlow(cfg UploadFlowConfig, opts ...RunnerOption[UploadState, UploadEvent]) *UploadFlow {
	if cfg.Logger == nil {
		cfg.Logger = defLogger{}
	}

	f := &UploadFlow{cfg: cfg}
	f.runner = NewRunner(
		UploadState{Phase: UploadPhaseIdle},
		UploadTransition,
		f.execute,
		opts...,
	)
	return f
}

// Select dispatches an upload for the picked file.
func (f *UploadFlow) Select(userID, name string, data []byte) {
	f.runner.Send(FileSelected{UserID: userID, Name: name, Data: data})
}

// State returns the current machine state.
func (f *UploadFlow) State() UploadState {
	return f.runner.State()
}

// OnTransition registers a state observer.
func (f *UploadFlow) OnTransition(fn func(UploadState)) {
	f.runner.OnTransition(fn)
}

// Stop disposes the flow.
func (f *UploadFlow) Stop() {
	f.runner.Stop()
}

func (f *UploadFlow) execute(ctx context.Context, cmd Command) (UploadEvent, bool) {
	put, ok := cmd.(PutBlobCommand)
	if !ok {
		return nil, false
	}

	if err := f.cfg.Store.Put(ctx, put.Path, put.Data); err != nil {
		return UploadFailed{Err: err}, true
	}

	if f.cfg.Users != nil {
		if id, err := uuid.Parse(put.UserID); err == nil {
			if _, err := f.cfg.Users.SetProfilePicture(ctx, id, put.Path); err != nil {
				f.cfg.Logger.Warn("failed to record profile picture for %s: %v", put.UserID, err)
			}
		}
	}

	return UploadFinished{Path: put.Path}, true
}
