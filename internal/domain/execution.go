package domain

import (
	"strings"

	"github.com/tidwall/gjson"
)

type Execution struct {
	ID string
}

type Status string

const (
	StatusNew      Status = "NEW"
	StatusRunning  Status = "RUNNING"
	StatusError    Status = "ERROR"
	StatusCanceled Status = "CANCELED"
	StatusDone     Status = "DONE"
)

// IsDone is true for every terminal status, including ERROR and CANCELED.
func (s Status) IsDone() bool {
	return s != StatusNew && s != StatusRunning
}

func (s Status) IsStarted() bool {
	return s != StatusNew
}

func (s Status) IsFailed() bool {
	return s == StatusError
}

func (s Status) IsCanceled() bool {
	return s == StatusCanceled
}

// Document is a JSON document returned by the service, kept as received.
type Document []byte

func (d Document) Get(path string) gjson.Result {
	return gjson.GetBytes(d, path)
}

func (d Document) Status() Status {
	return Status(strings.ToUpper(strings.TrimSpace(d.Get("status").String())))
}

func (d Document) ID() string {
	return d.Get("id").String()
}

// Count returns a non-negative integer field, treating a missing field as zero.
func (d Document) Count(field string) int {
	value := d.Get(field)
	if !value.Exists() || value.Int() < 0 {
		return 0
	}
	return int(value.Int())
}

func (d Document) String() string {
	return string(d)
}

type FileSource string

const (
	FileSourceUploads FileSource = "uploads"
	FileSourceResults FileSource = "results"
)

// CountField names the status document field holding the file count for a source.
func (s FileSource) CountField() string {
	if s == FileSourceUploads {
		return "numberOfUploadedFiles"
	}
	return "numberOfResultedFiles"
}

type ListFilter struct {
	Status    Status
	UserEmail string
	Limit     int
	Page      int
}
