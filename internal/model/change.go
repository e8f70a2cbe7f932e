package model

// Stream names a change stream with its own watermark.
type Stream string

const (
	StreamComments  Stream = "comments"
	StreamPipelines Stream = "pipelines"
)

// ChangeKind tells comment changes from pipeline changes in the retry
// ledger and the notification log.
type ChangeKind string

const (
	KindComment  ChangeKind = "comment"
	KindPipeline ChangeKind = "pipeline"
)
