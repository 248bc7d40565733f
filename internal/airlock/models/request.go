package models

import "time"

// ReleaseRequest is a workspace author's proposal to export a set of files.
// The identifier is time-ordered, so sorting by ID reproduces creation order.
//
// Turn is the current review round. It is 0 while drafting and advances on
// every submission, so reviews recorded in earlier rounds never count toward
// the current round's consensus.
type ReleaseRequest struct {
	ID        string
	Workspace string
	Author    string
	Status    Status
	Turn      int
	CreatedAt time.Time
	Groups    []*FileGroup
}

// FileGroup is a named subset of a request's files sharing review context
// and comments. Names are unique within a request.
type FileGroup struct {
	ID        string
	RequestID string
	Name      string
	Files     []*RequestFile
	Comments  []*Comment
}

// RequestFile is one file of a release request. ContentID pins the bytes
// that were reviewed; release re-derives it from the live workspace copy and
// refuses to release if they diverge.
type RequestFile struct {
	ID         string
	GroupID    string
	RelPath    string
	Kind       FileKind
	ContentID  string
	Provenance Provenance

	ReleasedAt *time.Time
	ReleasedBy string

	// Reviews holds every verdict ever recorded for this file, across all
	// turns. The sequence is append-only apart from a reviewer updating
	// their own verdict within the current turn.
	Reviews []*FileReview
}

// Released reports whether the file has been stamped as released.
func (f *RequestFile) Released() bool { return f.ReleasedAt != nil }

// Provenance is traceability metadata captured once when the file is added.
// It is never silently overwritten; only the explicit maintenance reimport
// path may replace it.
type Provenance struct {
	SourceCommit string
	Repository   string
	JobID        string
	SizeBytes    int64
	GeneratedAt  time.Time
}

// FileReview is one reviewer's verdict on one file for one turn.
// Unique per (file, reviewer, turn).
type FileReview struct {
	FileID    string
	Reviewer  string
	Turn      int
	Verdict   Verdict
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Comment is attached to a file group.
type Comment struct {
	ID         string
	GroupID    string
	Author     string
	Body       string
	Visibility Visibility
	CreatedAt  time.Time
}

// Group returns the named group, or nil.
func (r *ReleaseRequest) Group(name string) *FileGroup {
	for _, g := range r.Groups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// FindFile returns the file with the given relative path, searching every
// group, or nil. Paths are unique across the whole request, not per group.
func (r *ReleaseRequest) FindFile(relPath string) *RequestFile {
	for _, g := range r.Groups {
		for _, f := range g.Files {
			if f.RelPath == relPath {
				return f
			}
		}
	}
	return nil
}

// FindFileByID returns the file with the given identifier, or nil.
func (r *ReleaseRequest) FindFileByID(id string) *RequestFile {
	for _, g := range r.Groups {
		for _, f := range g.Files {
			if f.ID == id {
				return f
			}
		}
	}
	return nil
}

// OutputFiles returns every file of kind output, in group order.
func (r *ReleaseRequest) OutputFiles() []*RequestFile {
	var out []*RequestFile
	for _, g := range r.Groups {
		for _, f := range g.Files {
			if f.Kind == KindOutput {
				out = append(out, f)
			}
		}
	}
	return out
}

// Clone returns a deep copy of the request. The in-memory persistence
// adapter hands out clones so callers cannot mutate stored state directly.
func (r *ReleaseRequest) Clone() *ReleaseRequest {
	cp := *r
	cp.Groups = make([]*FileGroup, len(r.Groups))
	for i, g := range r.Groups {
		cp.Groups[i] = g.Clone()
	}
	return &cp
}

// Clone returns a deep copy of the group.
func (g *FileGroup) Clone() *FileGroup {
	cp := *g
	cp.Files = make([]*RequestFile, len(g.Files))
	for i, f := range g.Files {
		cp.Files[i] = f.Clone()
	}
	cp.Comments = make([]*Comment, len(g.Comments))
	for i, c := range g.Comments {
		cc := *c
		cp.Comments[i] = &cc
	}
	return &cp
}

// Clone returns a deep copy of the file.
func (f *RequestFile) Clone() *RequestFile {
	cp := *f
	if f.ReleasedAt != nil {
		at := *f.ReleasedAt
		cp.ReleasedAt = &at
	}
	cp.Reviews = make([]*FileReview, len(f.Reviews))
	for i, rv := range f.Reviews {
		rc := *rv
		cp.Reviews[i] = &rc
	}
	return &cp
}
